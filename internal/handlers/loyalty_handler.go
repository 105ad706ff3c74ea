package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/perkly/backend/internal/ledger"
	"github.com/perkly/backend/internal/models"
	"github.com/perkly/backend/internal/referral"
)

// LedgerService is the slice of the ledger engine the handler needs.
type LedgerService interface {
	Earn(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Redeem(ctx context.Context, customerID uuid.UUID, points int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Adjust(ctx context.Context, customerID uuid.UUID, delta int64, reference string, metadata map[string]string) (*models.Account, *models.Transaction, error)
	Summary(ctx context.Context, customerID uuid.UUID) (*ledger.Summary, error)
}

// ReferralRecorder abstracts the referral payout path.
type ReferralRecorder interface {
	RecordReferralBonus(ctx context.Context, referrerID uuid.UUID, refereeID string, bonusPoints int64, referralID string) (*models.Account, *models.Referral, error)
}

// LoyaltyHandler serves the /v1/loyalty and /v1/referrals endpoints.
type LoyaltyHandler struct {
	Ledger    LedgerService
	Referrals ReferralRecorder
	Logger    *slog.Logger
}

type pointsRequest struct {
	CustomerID string            `json:"customer_id"`
	Points     int64             `json:"points"`
	Reference  string            `json:"reference"`
	Metadata   map[string]string `json:"metadata"`
}

type adjustRequest struct {
	CustomerID string            `json:"customer_id"`
	Delta      int64             `json:"delta"`
	Reason     string            `json:"reason"`
	Reference  string            `json:"reference"`
	Metadata   map[string]string `json:"metadata"`
}

type mutationResponse struct {
	Account     *models.Account     `json:"account"`
	Transaction *models.Transaction `json:"transaction"`
}

// --- POST /v1/loyalty/earn ---

func (h *LoyaltyHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	customerID, ok := h.decodePointsRequest(w, r, &req)
	if !ok {
		return
	}
	acc, txn, err := h.Ledger.Earn(r.Context(), customerID, req.Points, req.Reference, req.Metadata)
	if err != nil {
		h.writeLedgerError(w, err, "earn")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Account: acc, Transaction: txn})
}

// --- POST /v1/loyalty/redeem ---

func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	customerID, ok := h.decodePointsRequest(w, r, &req)
	if !ok {
		return
	}
	acc, txn, err := h.Ledger.Redeem(r.Context(), customerID, req.Points, req.Reference, req.Metadata)
	if err != nil {
		h.writeLedgerError(w, err, "redeem")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Account: acc, Transaction: txn})
}

// --- POST /v1/loyalty/adjust ---

func (h *LoyaltyHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		http.Error(w, `{"error":"invalid customer_id"}`, http.StatusBadRequest)
		return
	}
	// The human-readable justification travels in metadata; the transaction
	// reason stays the ADJUST enum.
	metadata := req.Metadata
	if req.Reason != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["reason"] = req.Reason
	}
	acc, txn, err := h.Ledger.Adjust(r.Context(), customerID, req.Delta, req.Reference, metadata)
	if err != nil {
		h.writeLedgerError(w, err, "adjust")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Account: acc, Transaction: txn})
}

// --- GET /v1/loyalty/{customer_id}/summary ---

func (h *LoyaltyHandler) Summary(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.PathValue("customer_id"))
	if err != nil {
		http.Error(w, `{"error":"invalid customer id"}`, http.StatusBadRequest)
		return
	}
	sum, err := h.Ledger.Summary(r.Context(), customerID)
	if err != nil {
		h.writeLedgerError(w, err, "summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- POST /v1/referrals ---

type referralRequest struct {
	ReferrerID  string `json:"referrer_id"`
	RefereeID   string `json:"referee_id"`
	BonusPoints int64  `json:"bonus_points"`
	ReferralID  string `json:"referral_id"`
}

type referralResponse struct {
	Account  *models.Account  `json:"account"`
	Referral *models.Referral `json:"referral"`
}

func (h *LoyaltyHandler) RecordReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	referrerID, err := uuid.Parse(req.ReferrerID)
	if err != nil {
		http.Error(w, `{"error":"invalid referrer_id"}`, http.StatusBadRequest)
		return
	}
	if req.RefereeID == "" {
		http.Error(w, `{"error":"referee_id is required"}`, http.StatusBadRequest)
		return
	}
	acc, ref, err := h.Referrals.RecordReferralBonus(r.Context(), referrerID, req.RefereeID, req.BonusPoints, req.ReferralID)
	if err != nil {
		if errors.Is(err, referral.ErrDuplicateReferral) {
			http.Error(w, `{"error":"referral already recorded"}`, http.StatusConflict)
			return
		}
		h.writeLedgerError(w, err, "record referral")
		return
	}
	writeJSON(w, http.StatusCreated, referralResponse{Account: acc, Referral: ref})
}

// --- helpers ---

func (h *LoyaltyHandler) decodePointsRequest(w http.ResponseWriter, r *http.Request, req *pointsRequest) (uuid.UUID, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		http.Error(w, `{"error":"invalid customer_id"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return customerID, true
}

// writeLedgerError maps the engine taxonomy onto transport codes. An
// insufficient balance is an expected outcome and is never logged as an
// error; busy means the caller may retry.
func (h *LoyaltyHandler) writeLedgerError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "insufficient balance"})
	case errors.Is(err, ledger.ErrAccountUnknown):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account unknown"})
	case errors.Is(err, ledger.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger busy, retry later"})
	default:
		h.Logger.Error(op+" failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
