package models

import (
	"time"

	"github.com/google/uuid"
)

// API key scopes. Storefront keys may earn/redeem and read summaries;
// admin keys may additionally adjust balances.
const (
	APIKeyScopeStorefront = "storefront"
	APIKeyScopeAdmin      = "admin"
)

type APIKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Scope     string    `json:"scope"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
