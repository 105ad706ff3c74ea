package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// bootstrapSchema creates the application tables if they do not exist.
// River manages its own tables separately via rivermigrate.
const bootstrapSchema = `
CREATE TABLE IF NOT EXISTS loyalty_accounts (
	customer_id       UUID PRIMARY KEY,
	current_points    BIGINT NOT NULL DEFAULT 0 CHECK (current_points >= 0),
	lifetime_points   BIGINT NOT NULL DEFAULT 0,
	lifetime_redeemed BIGINT NOT NULL DEFAULT 0,
	tier              TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS loyalty_transactions (
	id          UUID PRIMARY KEY,
	customer_id UUID NOT NULL REFERENCES loyalty_accounts(customer_id),
	delta       BIGINT NOT NULL,
	reason      TEXT NOT NULL,
	reference   TEXT NOT NULL DEFAULT '',
	metadata    JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_loyalty_transactions_customer
	ON loyalty_transactions (customer_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS referrals (
	referral_id  TEXT PRIMARY KEY,
	referrer_id  UUID NOT NULL REFERENCES loyalty_accounts(customer_id),
	referee_id   TEXT NOT NULL,
	bonus_points BIGINT NOT NULL,
	bonus_tx_id  UUID NOT NULL REFERENCES loyalty_transactions(id),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tier_events (
	id          UUID PRIMARY KEY,
	customer_id UUID NOT NULL,
	from_tier   TEXT NOT NULL,
	to_tier     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'customer',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	scope      TEXT NOT NULL,
	key_hash   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked_at TIMESTAMPTZ
);
`

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, bootstrapSchema)
	return err
}
