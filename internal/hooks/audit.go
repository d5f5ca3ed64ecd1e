package hooks

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/store"
)

// auditStore is the slice of *store.Store AuditHook needs.
type auditStore interface {
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
}

// AuditHook records every tool call in the append-only audit log. It is
// always first in the pipeline. before_call is a no-op; after_call appends
// on success and failure alike, logging (not returning) storage errors —
// an audit failure must never fail the caller's tool invocation.
type AuditHook struct {
	store  auditStore
	logger *slog.Logger
}

// NewAuditHook constructs an AuditHook.
func NewAuditHook(store auditStore, logger *slog.Logger) *AuditHook {
	return &AuditHook{store: store, logger: logger}
}

func (h *AuditHook) BeforeCall(_ *HookContext, _ json.RawMessage) error {
	return nil
}

func (h *AuditHook) AfterCall(ctx *HookContext, outcome *ToolCallOutcome) error {
	detail, err := json.Marshal(map[string]any{
		"toolName": ctx.ToolName,
		"toolId":   toolIDString(ctx.ToolID),
		"success":  outcome.Success,
	})
	if err != nil {
		h.logger.Warn("audit hook: marshal detail", "error", err)
		return nil
	}

	entry := store.AuditEntry{
		Timestamp:  ctx.Timestamp,
		UserID:     ctx.UserID,
		ProviderID: ctx.ProviderID,
		ToolName:   ctx.ToolName,
		Success:    outcome.Success,
		Detail:     detail,
	}
	if err := h.store.AppendAudit(context.Background(), entry); err != nil {
		h.logger.Warn("audit hook: append audit entry failed", "error", err, "tool", ctx.ToolName)
		return nil
	}
	observe.DefaultMetrics().RecordAuditWrite(context.Background())
	return nil
}

func (h *AuditHook) Name() string { return "AuditHook" }

func toolIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
