// Package events records tier changes as durable audit rows. The jobs are
// enqueued transactionally with the ledger mutation that caused them, so an
// upgrade event exists if and only if the mutation committed.
package events

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

type TierUpgradeArgs struct {
	CustomerID uuid.UUID `json:"customer_id"`
	FromTier   string    `json:"from_tier"`
	ToTier     string    `json:"to_tier"`
}

func (TierUpgradeArgs) Kind() string { return "tier_upgrade" }

type TierUpgradeWorker struct {
	river.WorkerDefaults[TierUpgradeArgs]
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewTierUpgradeWorker(pool *pgxpool.Pool, log *slog.Logger) *TierUpgradeWorker {
	if log == nil {
		log = slog.Default()
	}
	return &TierUpgradeWorker{pool: pool, log: log}
}

// eventIDNamespace keys deterministic event ids off the river job id, so a
// redelivered job writes the same primary key.
var eventIDNamespace = uuid.MustParse("9b1c6f0a-3d52-4e8f-b7a1-5e0d2c4a8f31")

func eventID(jobID int64) uuid.UUID {
	return uuid.NewSHA1(eventIDNamespace, []byte(strconv.FormatInt(jobID, 10)))
}

func (w *TierUpgradeWorker) Work(ctx context.Context, job *river.Job[TierUpgradeArgs]) error {
	args := job.Args
	// Delivery is at-least-once; ON CONFLICT makes the retry a no-op.
	_, err := w.pool.Exec(ctx, `
		INSERT INTO tier_events (id, customer_id, from_tier, to_tier)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, eventID(job.ID), args.CustomerID, args.FromTier, args.ToTier)
	if err != nil {
		return err
	}
	w.log.Info("tier upgraded", "customer_id", args.CustomerID, "from", args.FromTier, "to", args.ToTier)
	return nil
}
