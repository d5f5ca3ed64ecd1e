package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/brokermcp/broker/internal/metatool"
	"github.com/brokermcp/broker/internal/store"
)

// auditAdminHandler serves GET /audit?since=<RFC3339>&until=<RFC3339>&limit=<n>,
// returning the caller's own audit trail, most recent first. Like
// /config, it sits behind BearerAuth and is always scoped to the
// authenticated caller — there is no cross-user admin role in this broker.
func auditAdminHandler(as adminStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, err := metatool.UserIDFromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		q := store.AuditQuery{UserID: userID}
		if since := r.URL.Query().Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				http.Error(w, "invalid since", http.StatusBadRequest)
				return
			}
			q.Since = t
		}
		if until := r.URL.Query().Get("until"); until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				http.Error(w, "invalid until", http.StatusBadRequest)
				return
			}
			q.Until = t
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}

		entries, err := as.QueryAudit(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})
}
