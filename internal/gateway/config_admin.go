package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/metatool"
	"github.com/brokermcp/broker/internal/store"
)

// adminStore is the narrow store dependency the /config and /audit admin
// endpoints need: the hierarchical config resolution/write pair behind
// get_effective_value and update_user_config, plus the audit read path.
type adminStore interface {
	GetEffectiveValue(ctx context.Context, cache *config.Cache, key, userID string) (store.ResolvedConfig, error)
	UpdateUserConfig(ctx context.Context, cache *config.Cache, key, userID, value string) error
	QueryAudit(ctx context.Context, q store.AuditQuery) ([]store.AuditEntry, error)
}

// configAdminHandler serves the authenticated caller's own config:
//
//	GET   /config/{key}  -> effective value + whether it is user-overridden
//	PUT   /config/{key}  -> write a user-scope override, body is the raw value
//
// It sits behind BearerAuth like /mcp, so the resolved user id always comes
// from the caller's own bearer token — there is no cross-user admin role in
// this broker, only a caller managing their own overrides.
func configAdminHandler(cs adminStore, cache *config.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/config/")
		if key == "" {
			http.Error(w, "missing config key", http.StatusBadRequest)
			return
		}
		userID, err := metatool.UserIDFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			resolved, err := cs.GetEffectiveValue(r.Context(), cache, key, userID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resolved)

		case http.MethodPut:
			body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
			if err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if err := cs.UpdateUserConfig(r.Context(), cache, key, userID, string(body)); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
