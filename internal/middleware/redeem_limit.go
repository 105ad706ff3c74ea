package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// redeemPeek is parsed from the request body so the guard can run before
// the handler; the body is restored afterwards.
type redeemPeek struct {
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"`
}

// RedeemLimit rejects obviously invalid redemptions early and, when a daily
// cap is configured (REDEEM_DAILY_CAP > 0), refuses requests that would push
// the account's redemptions for the day past it. The balance check itself
// stays in the ledger; this guard only bounds velocity.
func RedeemLimit(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	limit := dailyCapFromEnv()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek redeemPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Points <= 0 {
				http.Error(w, `{"error":"points must be > 0"}`, http.StatusBadRequest)
				return
			}

			if limit > 0 {
				customerID, err := uuid.Parse(peek.CustomerID)
				if err != nil {
					http.Error(w, `{"error":"invalid customer_id"}`, http.StatusBadRequest)
					return
				}
				redeemed, err := dailyRedeemedFn(r.Context(), pool, customerID)
				if err != nil {
					http.Error(w, `{"error":"failed to check daily redemptions"}`, http.StatusInternalServerError)
					return
				}
				if redeemed+peek.Points > limit {
					http.Error(w, fmt.Sprintf(`{"error":"daily redemptions %d + requested %d exceed cap %d"}`, redeemed, peek.Points, limit), http.StatusTooManyRequests)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func dailyCapFromEnv() int64 {
	raw := os.Getenv("REDEEM_DAILY_CAP")
	if raw == "" {
		return 0
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// dailyRedeemedFn computes today's redeemed total for an account.
// Tests can replace this to avoid hitting a real database.
var dailyRedeemedFn = defaultDailyRedeemed

// defaultDailyRedeemed sums REDEEM magnitudes for the account today (UTC).
func defaultDailyRedeemed(ctx context.Context, pool *pgxpool.Pool, customerID uuid.UUID) (int64, error) {
	var total int64
	err := pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(-delta), 0)
		FROM loyalty_transactions
		WHERE customer_id = $1 AND reason = 'REDEEM'
		  AND occurred_at >= CURRENT_DATE
	`, customerID).Scan(&total)
	return total, err
}
