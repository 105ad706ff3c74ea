package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkly/backend/internal/events"
	"github.com/perkly/backend/internal/models"
	"github.com/perkly/backend/internal/tier"
)

// InsertTierEventTxFunc enqueues a tier-upgrade job within the given
// transaction. Provided by main using river.Client.InsertTx; nil disables
// tier events.
type InsertTierEventTxFunc func(ctx context.Context, tx pgx.Tx, args events.TierUpgradeArgs) error

// Repository is the Postgres Ledger Store. Per-account serialization comes
// from the row lock taken by the conditional UPDATE on loyalty_accounts:
// concurrent mutations for one customer queue on that row while unrelated
// customers proceed in parallel.
type Repository struct {
	pool            *pgxpool.Pool
	tiers           *tier.Table
	insertTierEvent InsertTierEventTxFunc
}

func NewRepository(pool *pgxpool.Pool, tiers *tier.Table, insertTierEvent InsertTierEventTxFunc) *Repository {
	return &Repository{pool: pool, tiers: tiers, insertTierEvent: insertTierEvent}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const accountColumns = `customer_id, current_points, lifetime_points, lifetime_redeemed, tier, created_at, updated_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureAccount creates the account with zero balances on first touch.
// ON CONFLICT DO NOTHING makes concurrent first-touches converge on one row.
func (r *Repository) EnsureAccount(ctx context.Context, customerID uuid.UUID) (*models.Account, error) {
	if err := r.ensure(ctx, r.pool, customerID); err != nil {
		return nil, err
	}
	acc, err := r.getAccount(ctx, r.pool, customerID)
	if errors.Is(err, ErrAccountUnknown) {
		return nil, fmt.Errorf("%w: account vanished after ensure", ErrStoreUnavailable)
	}
	return acc, err
}

func (r *Repository) ensure(ctx context.Context, q rowQuerier, customerID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO loyalty_accounts (customer_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID, r.tiers.Derive(0).Name)
	if err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (r *Repository) getAccount(ctx context.Context, q rowQuerier, customerID uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := q.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM loyalty_accounts WHERE customer_id = $1
	`, customerID).Scan(&a.CustomerID, &a.CurrentPoints, &a.LifetimePoints, &a.LifetimeRedeemed, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountUnknown
	}
	if err != nil {
		return nil, ClassifyError(err)
	}
	return &a, nil
}

// ApplyTransaction runs the full mutation in its own transaction.
func (r *Repository) ApplyTransaction(ctx context.Context, customerID uuid.UUID, delta int64, reason, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, ClassifyError(err)
	}
	defer tx.Rollback(ctx)

	acc, txn, err := r.ApplyTransactionTx(ctx, tx, customerID, delta, reason, reference, metadata)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, ClassifyError(err)
	}
	return acc, txn, nil
}

// ApplyTransactionTx runs inside the caller's transaction. It:
// a) lazily creates the account row,
// b) moves current_points and the lifetime counters in one conditional
//    UPDATE whose row lock serializes concurrent mutations per account and
//    whose guard rejects negative balances,
// c) recomputes and caches the tier,
// d) appends the immutable transaction row,
// e) enqueues a tier-upgrade job when the tier changed.
// The caller's commit makes all of it visible as one unit.
func (r *Repository) ApplyTransactionTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, delta int64, reason, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error) {
	if err := r.ensure(ctx, tx, customerID); err != nil {
		return nil, nil, err
	}

	var a models.Account
	err := tx.QueryRow(ctx, `
		UPDATE loyalty_accounts SET
			current_points = current_points + $2,
			lifetime_points = lifetime_points + CASE WHEN $2 > 0 THEN $2 ELSE 0 END,
			lifetime_redeemed = lifetime_redeemed + CASE WHEN $3 = 'REDEEM' THEN -$2 ELSE 0 END,
			updated_at = now()
		WHERE customer_id = $1 AND current_points + $2 >= 0
		RETURNING `+accountColumns+`
	`, customerID, delta, reason).Scan(&a.CustomerID, &a.CurrentPoints, &a.LifetimePoints, &a.LifetimeRedeemed, &a.Tier, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// The row exists (ensured above), so no match means the balance guard failed.
		return nil, nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, nil, ClassifyError(err)
	}

	// Lifetime points never shrink, so a tier change is always an upgrade.
	if derived := r.tiers.Derive(a.LifetimePoints); derived.Name != a.Tier {
		if _, err := tx.Exec(ctx, `
			UPDATE loyalty_accounts SET tier = $2 WHERE customer_id = $1
		`, customerID, derived.Name); err != nil {
			return nil, nil, ClassifyError(err)
		}
		from := a.Tier
		a.Tier = derived.Name
		if r.insertTierEvent != nil {
			if err := r.insertTierEvent(ctx, tx, events.TierUpgradeArgs{
				CustomerID: customerID,
				FromTier:   from,
				ToTier:     derived.Name,
			}); err != nil {
				return nil, nil, fmt.Errorf("enqueue tier event: %w", err)
			}
		}
	}

	txn := &models.Transaction{
		ID:         uuid.New(),
		CustomerID: customerID,
		Delta:      delta,
		Reason:     reason,
		Reference:  reference,
		Metadata:   metadata,
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, delta, reason, reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING occurred_at
	`, txn.ID, customerID, delta, reason, reference, meta).Scan(&txn.OccurredAt)
	if err != nil {
		return nil, nil, ClassifyError(err)
	}
	return &a, txn, nil
}

// ReadAccountWithHistory returns the account and its transactions, newest
// first, without mutating anything.
func (r *Repository) ReadAccountWithHistory(ctx context.Context, customerID uuid.UUID, limit, offset int) (*models.Account, []*models.Transaction, error) {
	acc, err := r.getAccount(ctx, r.pool, customerID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, delta, reason, reference, metadata, occurred_at
		FROM loyalty_transactions
		WHERE customer_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, nil, ClassifyError(err)
	}
	defer rows.Close()
	var history []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var meta []byte
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Delta, &t.Reason, &t.Reference, &meta, &t.OccurredAt); err != nil {
			return nil, nil, ClassifyError(err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, nil, fmt.Errorf("decode metadata for tx %s: %w", t.ID, err)
			}
		}
		history = append(history, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, ClassifyError(err)
	}
	return acc, history, nil
}

// ClassifyError maps transient serialization failures to ErrConflict so
// RetryOnConflict retries them; everything else is a store failure. Callers
// that commit their own transactions run commit errors through this too.
func ClassifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
