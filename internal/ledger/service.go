package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/perkly/backend/internal/models"
	"github.com/perkly/backend/internal/tier"
)

// Store is the durable, transactional persistence contract for loyalty
// accounts. All mutations for a given customer are serialized by the
// implementation: two concurrent ApplyTransaction calls for the same account
// never interleave their read-modify-write cycles.
type Store interface {
	// EnsureAccount returns the existing account or creates a zero-balance
	// one. Idempotent and safe under concurrent first-touch races.
	EnsureAccount(ctx context.Context, customerID uuid.UUID) (*models.Account, error)

	// ApplyTransaction atomically writes a transaction row and moves the
	// cached balance counters, rejecting with ErrInsufficientBalance if the
	// balance would go negative. Either both writes persist or neither does.
	ApplyTransaction(ctx context.Context, customerID uuid.UUID, delta int64, reason, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)

	// ReadAccountWithHistory returns the account and its transactions,
	// newest first. Returns ErrAccountUnknown if the account does not exist.
	ReadAccountWithHistory(ctx context.Context, customerID uuid.UUID, limit, offset int) (*models.Account, []*models.Transaction, error)
}

// MaxHistoryPageSize bounds how many transactions a single read returns.
const MaxHistoryPageSize = 100

// Summary is the denormalized read view of one account.
type Summary struct {
	CustomerID         uuid.UUID             `json:"customer_id"`
	CurrentPoints      int64                 `json:"current_points"`
	LifetimePoints     int64                 `json:"lifetime_points"`
	LifetimeRedeemed   int64                 `json:"lifetime_redeemed"`
	Tier               string                `json:"tier"`
	NextTier           string                `json:"next_tier,omitempty"`
	PointsToNextTier   int64                 `json:"points_to_next_tier"`
	RecentTransactions []*models.Transaction `json:"recent_transactions"`
}

// Service is the ledger engine: it validates point mutations, applies them
// through the store under its serialization guarantee, and projects the
// summary read view.
type Service interface {
	Earn(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Redeem(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Adjust(ctx context.Context, customerID uuid.UUID, delta int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Summary(ctx context.Context, customerID uuid.UUID) (*Summary, error)
	History(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]*models.Transaction, error)
}

const (
	maxConflictRetries  = 3
	conflictBackoffBase = 10 * time.Millisecond
	summaryHistoryLimit = 10
)

type service struct {
	store Store
	tiers *tier.Table
}

// NewService creates the ledger engine over the given store and tier table.
func NewService(store Store, tiers *tier.Table) Service {
	return &service{store: store, tiers: tiers}
}

var _ Service = (*service)(nil)

func (s *service) Earn(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	if points <= 0 {
		return nil, nil, fmt.Errorf("%w: earn requires points > 0, got %d", ErrInvalidAmount, points)
	}
	return s.apply(ctx, customerID, points, models.ReasonEarn, reference, metadata)
}

// Redeem takes a positive magnitude and negates it internally; sign is
// normalized at this boundary so callers never pass negative deltas.
func (s *service) Redeem(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	if points <= 0 {
		return nil, nil, fmt.Errorf("%w: redeem requires points > 0, got %d", ErrInvalidAmount, points)
	}
	return s.apply(ctx, customerID, -points, models.ReasonRedeem, reference, metadata)
}

func (s *service) Adjust(ctx context.Context, customerID uuid.UUID, delta int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	if delta == 0 {
		return nil, nil, fmt.Errorf("%w: adjust requires a nonzero delta", ErrInvalidAmount)
	}
	return s.apply(ctx, customerID, delta, models.ReasonAdjust, reference, metadata)
}

// apply drives the store under the shared conflict-retry policy.
func (s *service) apply(ctx context.Context, customerID uuid.UUID, delta int64, reason, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	var acc *models.Account
	var txn *models.Transaction
	err := RetryOnConflict(ctx, func() error {
		var err error
		acc, txn, err = s.store.ApplyTransaction(ctx, customerID, delta, reason, reference, metadata)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return acc, txn, nil
}

// RetryOnConflict runs fn, retrying transient write conflicts (ErrConflict)
// with capped exponential backoff before surfacing ErrBusy. Every mutation
// that opens its own store transaction goes through this policy, including
// the referral recorder. Non-conflict errors pass through untouched.
func RetryOnConflict(ctx context.Context, fn func() error) error {
	backoff := conflictBackoffBase
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == maxConflictRetries {
			return fmt.Errorf("%w: gave up after %d retries: %v", ErrBusy, maxConflictRetries, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Summary ensures the account exists first, so a brand-new customer reads
// as a valid zero-balance record rather than erroring.
func (s *service) Summary(ctx context.Context, customerID uuid.UUID) (*Summary, error) {
	if _, err := s.store.EnsureAccount(ctx, customerID); err != nil {
		return nil, err
	}
	acc, history, err := s.store.ReadAccountWithHistory(ctx, customerID, summaryHistoryLimit, 0)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		CustomerID:         acc.CustomerID,
		CurrentPoints:      acc.CurrentPoints,
		LifetimePoints:     acc.LifetimePoints,
		LifetimeRedeemed:   acc.LifetimeRedeemed,
		Tier:               acc.Tier,
		RecentTransactions: history,
	}
	// Project the next tier from lifetime points, not from the cached name:
	// a tier renamed in config would otherwise make Next miss forever.
	if next, ok := s.tiers.Next(s.tiers.Derive(acc.LifetimePoints).Name); ok {
		sum.NextTier = next.Name
		sum.PointsToNextTier = s.tiers.PointsToNext(acc.LifetimePoints)
	}
	return sum, nil
}

// History returns one page of transactions, newest first. pageSize is
// clamped to MaxHistoryPageSize; page is 1-based.
func (s *service) History(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]*models.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxHistoryPageSize {
		pageSize = MaxHistoryPageSize
	}
	_, history, err := s.store.ReadAccountWithHistory(ctx, customerID, pageSize, (page-1)*pageSize)
	if errors.Is(err, ErrAccountUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}
