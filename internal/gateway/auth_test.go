package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokermcp/broker/internal/metatool"
	"github.com/brokermcp/broker/internal/store"
)

type fakeTokenStore struct {
	byHash map[string]store.BearerToken
}

func (f *fakeTokenStore) BearerTokenByHash(_ context.Context, hash string) (store.BearerToken, error) {
	tok, ok := f.byHash[hash]
	if !ok {
		return store.BearerToken{}, pgx.ErrNoRows
	}
	return tok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := metatool.UserIDFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(userID))
	})
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	h := BearerAuth(&fakeTokenStore{byHash: map[string]store.BearerToken{}}, discardLogger(), echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthRejectsUnknownToken(t *testing.T) {
	h := BearerAuth(&fakeTokenStore{byHash: map[string]store.BearerToken{}}, discardLogger(), echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthRejectsExpiredToken(t *testing.T) {
	raw := "expired-token"
	past := time.Now().Add(-time.Hour)
	tok := store.BearerToken{ID: uuid.New(), UserID: "user-1", ExpiresAt: &past}

	h := BearerAuth(&fakeTokenStore{byHash: map[string]store.BearerToken{hashToken(raw): tok}}, discardLogger(), echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthAcceptsActiveTokenAndAttachesUserID(t *testing.T) {
	raw := "valid-token"
	tok := store.BearerToken{ID: uuid.New(), UserID: "user-42"}

	h := BearerAuth(&fakeTokenStore{byHash: map[string]store.BearerToken{hashToken(raw): tok}}, discardLogger(), echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "user-42" {
		t.Fatalf("body = %q, want %q", got, "user-42")
	}
}
