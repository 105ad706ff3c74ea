package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral records a paid-out referral bonus. It is written in the same
// transaction as its BonusTxID ledger entry, so the two are visible together
// or not at all.
type Referral struct {
	ReferralID  string    `json:"referral_id"`
	ReferrerID  uuid.UUID `json:"referrer_id"`
	RefereeID   string    `json:"referee_id"`
	BonusPoints int64     `json:"bonus_points"`
	BonusTxID   uuid.UUID `json:"bonus_tx_id"`
	CreatedAt   time.Time `json:"created_at"`
}
