package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// passThrough proves the middleware let the request reach the handler, and
// checks the body survived the peek.
func passThrough(t *testing.T, wantBody string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != wantBody {
			t.Errorf("handler saw body %q, want %q", body, wantBody)
		}
		w.WriteHeader(http.StatusOK)
	})
}

// ---------------------------------------------------------------------------
// 1. Valid redeem with no cap configured -> 200, body intact.
// ---------------------------------------------------------------------------

func TestRedeemLimit_NoCap(t *testing.T) {
	body := `{"customer_id":"` + uuid.NewString() + `","points":50}`
	handler := RedeemLimit(nil)(passThrough(t, body))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 2. Non-positive points -> 400 before any handler or db work.
// ---------------------------------------------------------------------------

func TestRedeemLimit_NonPositivePoints(t *testing.T) {
	handler := RedeemLimit(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler should not run")
	}))

	for _, body := range []string{
		`{"customer_id":"` + uuid.NewString() + `","points":0}`,
		`{"customer_id":"` + uuid.NewString() + `","points":-10}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// 3. Daily cap enforced: today's redemptions + request > cap -> 429.
// ---------------------------------------------------------------------------

func TestRedeemLimit_DailyCap(t *testing.T) {
	t.Setenv("REDEEM_DAILY_CAP", "200")
	original := dailyRedeemedFn
	dailyRedeemedFn = func(_ context.Context, _ *pgxpool.Pool, _ uuid.UUID) (int64, error) {
		return 180, nil // already redeemed 180 today
	}
	defer func() { dailyRedeemedFn = original }()

	body := `{"customer_id":"` + uuid.NewString() + `","points":30}`
	handler := RedeemLimit(nil)(passThrough(t, body))

	// 180 + 30 = 210 > 200
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "exceed cap") {
		t.Errorf("expected cap error message, got: %s", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 4. Under the cap -> 200.
// ---------------------------------------------------------------------------

func TestRedeemLimit_UnderCap(t *testing.T) {
	t.Setenv("REDEEM_DAILY_CAP", "200")
	original := dailyRedeemedFn
	dailyRedeemedFn = func(_ context.Context, _ *pgxpool.Pool, _ uuid.UUID) (int64, error) {
		return 100, nil
	}
	defer func() { dailyRedeemedFn = original }()

	body := `{"customer_id":"` + uuid.NewString() + `","points":50}`
	handler := RedeemLimit(nil)(passThrough(t, body))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
