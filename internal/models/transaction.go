package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction reason enums.
const (
	ReasonEarn          = "EARN"
	ReasonRedeem        = "REDEEM"
	ReasonReferralBonus = "REFERRAL_BONUS"
	ReasonAdjust        = "ADJUST"
)

// Transaction is one immutable ledger entry. Delta is signed: positive for
// earns and bonuses, negative for redemptions and downward adjustments,
// never zero. Corrections are new transactions, never edits.
type Transaction struct {
	ID         uuid.UUID         `json:"id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Delta      int64             `json:"delta"`
	Reason     string            `json:"reason"`
	Reference  string            `json:"reference"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
