// Package gateway wires the meta-tool MCP server into an HTTP listener:
// bearer-token authentication ahead of the streamable-HTTP MCP endpoint,
// plus health, readiness, and Prometheus metrics endpoints.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brokermcp/broker/internal/metatool"
	"github.com/brokermcp/broker/internal/store"
)

// tokenStore is the narrow store dependency auth needs, kept as an
// interface so tests can fake it without a real database.
type tokenStore interface {
	BearerTokenByHash(ctx context.Context, hash string) (store.BearerToken, error)
}

// BearerAuth wraps next, requiring every request to carry a valid
// "Authorization: Bearer <token>" header. On success it attaches the
// token's owning user id to the request context via metatool.WithUserID.
func BearerAuth(tokens tokenStore, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}

		hash := hashToken(raw)
		tok, err := tokens.BearerTokenByHash(r.Context(), hash)
		if err != nil {
			logger.Warn("bearer auth: token lookup failed", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if !tok.Active(time.Now()) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := metatool.WithUserID(r.Context(), tok.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the raw token from an "Authorization: Bearer <token>"
// header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// hashToken returns the hex-encoded SHA-256 hash of a raw bearer token, the
// only form ever compared against or stored in the database.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

