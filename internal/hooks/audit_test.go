package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/store"
)

type fakeAuditStore struct {
	entries []store.AuditEntry
	failErr error
}

func (f *fakeAuditStore) AppendAudit(_ context.Context, entry store.AuditEntry) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditHookBeforeCallIsNoOp(t *testing.T) {
	audit := &fakeAuditStore{}
	h := NewAuditHook(audit, discardLogger())
	if err := h.BeforeCall(newCtx(), nil); err != nil {
		t.Fatalf("BeforeCall: %v", err)
	}
	if len(audit.entries) != 0 {
		t.Error("expected no audit entry to be written before the call")
	}
}

func TestAuditHookAfterCallRecordsSuccessAndFailure(t *testing.T) {
	audit := &fakeAuditStore{}
	h := NewAuditHook(audit, discardLogger())
	pid := uuid.New()

	ctx := &HookContext{UserID: "u1", ProviderID: &pid, ToolName: "demo", Timestamp: time.Now()}
	if err := h.AfterCall(ctx, &ToolCallOutcome{Success: true}); err != nil {
		t.Fatalf("AfterCall success: %v", err)
	}
	if err := h.AfterCall(ctx, &ToolCallOutcome{Success: false, Err: "boom"}); err != nil {
		t.Fatalf("AfterCall failure: %v", err)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(audit.entries))
	}
	if !audit.entries[0].Success {
		t.Error("first entry should record success=true")
	}
	if audit.entries[1].Success {
		t.Error("second entry should record success=false")
	}
}

func TestAuditHookSwallowsStorageErrors(t *testing.T) {
	audit := &fakeAuditStore{failErr: errors.New("db down")}
	h := NewAuditHook(audit, discardLogger())
	ctx := newCtx()

	if err := h.AfterCall(ctx, &ToolCallOutcome{Success: true}); err != nil {
		t.Fatalf("AfterCall must never fail the caller on storage error, got %v", err)
	}
}
