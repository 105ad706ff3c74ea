package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkly/backend/internal/ledger"
	"github.com/perkly/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ ReferralStore = (*Repository)(nil)

// CreateTx inserts the referral record inside the given transaction.
// The unique key on referral_id makes repeat payouts fail loudly.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, ref *models.Referral) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO referrals (referral_id, referrer_id, referee_id, bonus_points, bonus_tx_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, ref.ReferralID, ref.ReferrerID, ref.RefereeID, ref.BonusPoints, ref.BonusTxID).Scan(&ref.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReferral
		}
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// GetByReferralID returns the referral or nil if none was recorded.
func (r *Repository) GetByReferralID(ctx context.Context, referralID string) (*models.Referral, error) {
	var ref models.Referral
	err := r.pool.QueryRow(ctx, `
		SELECT referral_id, referrer_id, referee_id, bonus_points, bonus_tx_id, created_at
		FROM referrals WHERE referral_id = $1
	`, referralID).Scan(&ref.ReferralID, &ref.ReferrerID, &ref.RefereeID, &ref.BonusPoints, &ref.BonusTxID, &ref.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return &ref, nil
}
