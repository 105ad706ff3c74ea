package dashboard

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/perkly/backend/internal/auth"
	"github.com/perkly/backend/internal/ledger"
	"github.com/perkly/backend/internal/middleware"
	"github.com/perkly/backend/internal/models"
	"github.com/perkly/backend/internal/repository"
)

type Handler struct {
	authSvc auth.Service
	ledger  ledger.Service
	apiKeyR *repository.APIKeyRepo
	log     *slog.Logger
}

func NewHandler(authSvc auth.Service, ledgerSvc ledger.Service, apiKeyR *repository.APIKeyRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc: authSvc,
		ledger:  ledgerSvc,
		apiKeyR: apiKeyR,
		log:     log,
	}
}

func (h *Handler) customerFromRequest(r *http.Request) (uuid.UUID, string, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, "", fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, "", fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/loyalty/me
func (h *Handler) GetMyLoyalty(w http.ResponseWriter, r *http.Request) {
	customerID, _, err := h.customerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sum, err := h.ledger.Summary(r.Context(), customerID)
	if err != nil {
		h.log.Error("loyalty summary failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/v1/loyalty/history?page=1&page_size=25
func (h *Handler) GetMyHistory(w http.ResponseWriter, r *http.Request) {
	customerID, _, err := h.customerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	history, err := h.ledger.History(r.Context(), customerID, page, pageSize)
	if err != nil {
		h.log.Error("loyalty history failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, history)
}

// GET /api/v1/api-keys
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	keys, err := h.apiKeyR.List(r.Context())
	if err != nil {
		h.log.Error("list api keys failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// POST /api/v1/api-keys
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var body struct {
		Name  string `json:"name"`
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Scope != models.APIKeyScopeStorefront && body.Scope != models.APIKeyScopeAdmin {
		http.Error(w, "scope must be storefront or admin", http.StatusBadRequest)
		return
	}
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	rawKey := "pk_" + hex.EncodeToString(rawBytes)

	k := &models.APIKey{
		ID:      uuid.New(),
		Name:    body.Name,
		Scope:   body.Scope,
		KeyHash: middleware.HashKey(rawKey),
	}
	if err := h.apiKeyR.Create(r.Context(), k); err != nil {
		h.log.Error("create api key failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	// The raw key is returned once and never stored.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      k.ID,
		"name":    k.Name,
		"scope":   k.Scope,
		"raw_key": rawKey,
	})
}

// DELETE /api/v1/api-keys/{id}
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	parts := strings.Split(strings.TrimRight(r.URL.Path, "/"), "/")
	keyID, err := uuid.Parse(parts[len(parts)-1])
	if err != nil {
		http.Error(w, "invalid key ID", http.StatusBadRequest)
		return
	}
	if err := h.apiKeyR.Revoke(r.Context(), keyID); err != nil {
		h.log.Error("revoke api key failed", "error", err)
		http.Error(w, "revoke failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	_, role, err := h.customerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if role != "admin" {
		http.Error(w, "admin role required", http.StatusForbidden)
		return false
	}
	return true
}
