package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkly/backend/internal/handlers"
	"github.com/perkly/backend/internal/middleware"
	"github.com/perkly/backend/internal/models"
	"github.com/perkly/backend/internal/repository"
)

// RegisterV1Routes adds the /v1/ storefront endpoints to the given mux.
// Middleware chain: APIKeyAuth -> RequireScope -> (RedeemLimit on redeem only) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	pool *pgxpool.Pool,
	apiKeyRepo *repository.APIKeyRepo,
	ledgerSvc handlers.LedgerService,
	referralSvc handlers.ReferralRecorder,
	logger *slog.Logger,
) {
	lh := &handlers.LoyaltyHandler{
		Ledger:    ledgerSvc,
		Referrals: referralSvc,
		Logger:    logger,
	}

	auth := middleware.APIKeyAuth(apiKeyRepo)
	storefront := middleware.RequireScope(models.APIKeyScopeStorefront)
	admin := middleware.RequireScope(models.APIKeyScopeAdmin)
	redeemLimit := middleware.RedeemLimit(pool)

	mux.Handle("POST /v1/loyalty/earn", auth(storefront(http.HandlerFunc(lh.Earn))))
	mux.Handle("POST /v1/loyalty/redeem", auth(storefront(redeemLimit(http.HandlerFunc(lh.Redeem)))))
	mux.Handle("POST /v1/loyalty/adjust", auth(admin(http.HandlerFunc(lh.Adjust))))
	mux.Handle("GET /v1/loyalty/{customer_id}/summary", auth(storefront(http.HandlerFunc(lh.Summary))))
	mux.Handle("POST /v1/referrals", auth(storefront(http.HandlerFunc(lh.RecordReferral))))
}
