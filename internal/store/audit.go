package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppendAudit writes one audit_entries row. Called by the built-in audit
// hook's after_call phase; never returns a partially-written row (single
// INSERT, no transaction needed).
func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	const q = `
		INSERT INTO audit_entries (user_id, provider_id, tool_name, success, detail)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, e.UserID, e.ProviderID, e.ToolName, e.Success, e.Detail)
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

// AuditQuery narrows a query_audit_log call.
type AuditQuery struct {
	UserID     string
	ProviderID *uuid.UUID
	Since      time.Time
	Until      time.Time
	Limit      int
}

// QueryAudit returns matching audit entries, most recent first.
func (s *Store) QueryAudit(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	var conditions []string
	args := []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.UserID != "" {
		conditions = append(conditions, "user_id = "+next(q.UserID))
	}
	if q.ProviderID != nil {
		conditions = append(conditions, "provider_id = "+next(*q.ProviderID))
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp >= "+next(q.Since))
	}
	if !q.Until.IsZero() {
		conditions = append(conditions, "timestamp <= "+next(q.Until))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + joinAnd(conditions)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	query := fmt.Sprintf(`
		SELECT id, timestamp, user_id, provider_id, tool_name, success, detail
		FROM   audit_entries
		%s
		ORDER  BY timestamp DESC
		LIMIT  %s`, where, limitArg)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEntry, error) {
		var e AuditEntry
		if err := row.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.ProviderID, &e.ToolName, &e.Success, &e.Detail); err != nil {
			return AuditEntry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan audit entries: %w", err)
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}

func joinAnd(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += "\n  AND " + c
	}
	return out
}
