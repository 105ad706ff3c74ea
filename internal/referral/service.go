// Package referral pays out referral bonuses. The referral record and its
// REFERRAL_BONUS ledger transaction are written in one database
// transaction, so a referral can never be marked paid without the points
// landing, or vice versa.
package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/perkly/backend/internal/ledger"
	"github.com/perkly/backend/internal/models"
)

// ErrDuplicateReferral is returned when a referral id has already paid out.
var ErrDuplicateReferral = errors.New("referral already recorded")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ReferralStore persists referral records inside a caller-owned transaction.
type ReferralStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, ref *models.Referral) error
}

// BonusApplier is the tx-scoped slice of the ledger store the recorder needs.
type BonusApplier interface {
	ApplyTransactionTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, delta int64, reason, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
}

type Service struct {
	db     TxBeginner
	repo   ReferralStore
	ledger BonusApplier
}

func NewService(db TxBeginner, repo ReferralStore, bonus BonusApplier) *Service {
	return &Service{db: db, repo: repo, ledger: bonus}
}

// RecordReferralBonus awards bonusPoints to the referrer and records the
// referral, atomically. If either write fails, neither is visible. Transient
// write conflicts rerun the whole transaction under the engine's retry
// policy and come back as ErrBusy once it is exhausted.
func (s *Service) RecordReferralBonus(ctx context.Context, referrerID uuid.UUID, refereeID string, bonusPoints int64, referralID string) (*models.Account, *models.Referral, error) {
	if bonusPoints <= 0 {
		return nil, nil, fmt.Errorf("%w: referral bonus requires points > 0, got %d", ledger.ErrInvalidAmount, bonusPoints)
	}
	if referralID == "" {
		return nil, nil, fmt.Errorf("%w: referral id is required", ledger.ErrInvalidAmount)
	}

	var acc *models.Account
	var ref *models.Referral
	err := ledger.RetryOnConflict(ctx, func() error {
		var err error
		acc, ref, err = s.recordOnce(ctx, referrerID, refereeID, bonusPoints, referralID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return acc, ref, nil
}

// recordOnce runs one attempt in a fresh transaction.
func (s *Service) recordOnce(ctx context.Context, referrerID uuid.UUID, refereeID string, bonusPoints int64, referralID string) (*models.Account, *models.Referral, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	acc, txn, err := s.ledger.ApplyTransactionTx(ctx, tx, referrerID, bonusPoints, models.ReasonReferralBonus, referralID,
		map[string]string{"referee_id": refereeID})
	if err != nil {
		return nil, nil, err
	}

	ref := &models.Referral{
		ReferralID:  referralID,
		ReferrerID:  referrerID,
		RefereeID:   refereeID,
		BonusPoints: bonusPoints,
		BonusTxID:   txn.ID,
	}
	if err := s.repo.CreateTx(ctx, tx, ref); err != nil {
		return nil, nil, err
	}

	// A serialization failure at commit is as retryable as one mid-write.
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, ledger.ClassifyError(err)
	}
	return acc, ref, nil
}
