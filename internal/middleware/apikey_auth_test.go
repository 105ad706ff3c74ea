package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/perkly/backend/internal/models"
)

type mockKeyRepo struct {
	keys map[string]*models.APIKey // keyed by hash
}

func (m *mockKeyRepo) FindByKeyHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	key, ok := m.keys[keyHash]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return key, nil
}

func repoWith(raw, scope string) *mockKeyRepo {
	return &mockKeyRepo{keys: map[string]*models.APIKey{
		HashKey(raw): {ID: uuid.New(), Name: "test", Scope: scope},
	}}
}

var ok200 = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth_Valid(t *testing.T) {
	handler := APIKeyAuth(repoWith("sk_live_abc", models.APIKeyScopeStorefront))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := APIKeyFromCtx(r.Context())
			if key == nil || key.Scope != models.APIKeyScopeStorefront {
				t.Error("key not set in context")
			}
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer sk_live_abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_MissingOrWrong(t *testing.T) {
	handler := APIKeyAuth(repoWith("sk_live_abc", models.APIKeyScopeStorefront))(ok200)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"unknown key", "Bearer sk_live_other"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
}

func TestRequireScope(t *testing.T) {
	cases := []struct {
		keyScope string
		required string
		want     int
	}{
		{models.APIKeyScopeStorefront, models.APIKeyScopeStorefront, http.StatusOK},
		{models.APIKeyScopeAdmin, models.APIKeyScopeStorefront, http.StatusOK}, // admin passes everywhere
		{models.APIKeyScopeAdmin, models.APIKeyScopeAdmin, http.StatusOK},
		{models.APIKeyScopeStorefront, models.APIKeyScopeAdmin, http.StatusForbidden},
	}
	for _, tc := range cases {
		handler := RequireScope(tc.required)(ok200)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithAPIKey(req.Context(), &models.APIKey{ID: uuid.New(), Scope: tc.keyScope}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("key %q requiring %q: expected %d, got %d", tc.keyScope, tc.required, tc.want, rec.Code)
		}
	}

	// No key in context at all.
	rec := httptest.NewRecorder()
	RequireScope(models.APIKeyScopeAdmin)(ok200).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}
}
