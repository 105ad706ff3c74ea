package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the loyalty record for one customer identity. CurrentPoints is
// the spendable balance and is never negative. LifetimePoints and
// LifetimeRedeemed only ever grow; Tier is derived from LifetimePoints and
// cached here, kept in step by the store on every mutation.
type Account struct {
	CustomerID       uuid.UUID `json:"customer_id"`
	CurrentPoints    int64     `json:"current_points"`
	LifetimePoints   int64     `json:"lifetime_points"`
	LifetimeRedeemed int64     `json:"lifetime_redeemed"`
	Tier             string    `json:"tier"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
