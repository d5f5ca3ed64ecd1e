// Package hooks implements the before/after interceptor chain that every
// meta-tool call runs through: audit logging and access control, scoped
// globally, per-provider, per-user, or per user-provider pair.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/observe"
)

// HookContext carries everything a hook needs to know about the call it is
// intercepting.
type HookContext struct {
	UserID     string
	ProviderID *uuid.UUID // nil for meta-tool calls with no concrete provider
	ToolName   string
	ToolID     *uuid.UUID
	Scope      HookScope
	Timestamp  time.Time
}

// HookScope selects which calls a hook applies to.
type HookScope struct {
	kind       scopeKind
	providerID uuid.UUID
	userID     string
}

type scopeKind int

const (
	scopeGlobal scopeKind = iota
	scopeProvider
	scopeUser
	scopeUserProvider
)

// Global matches every call.
func Global() HookScope { return HookScope{kind: scopeGlobal} }

// Provider matches calls whose HookContext.ProviderID equals id.
func Provider(id uuid.UUID) HookScope { return HookScope{kind: scopeProvider, providerID: id} }

// User matches calls whose HookContext.UserID equals userID.
func User(userID string) HookScope { return HookScope{kind: scopeUser, userID: userID} }

// UserProvider matches calls from userID against provider id.
func UserProvider(userID string, id uuid.UUID) HookScope {
	return HookScope{kind: scopeUserProvider, userID: userID, providerID: id}
}

// matches reports whether scope applies to ctx.
func (s HookScope) matches(ctx *HookContext) bool {
	switch s.kind {
	case scopeGlobal:
		return true
	case scopeProvider:
		return ctx.ProviderID != nil && *ctx.ProviderID == s.providerID
	case scopeUser:
		return ctx.UserID == s.userID
	case scopeUserProvider:
		return ctx.UserID == s.userID && ctx.ProviderID != nil && *ctx.ProviderID == s.providerID
	default:
		return false
	}
}

// ToolCallOutcome is the result of a tool call, as seen by after_call hooks.
type ToolCallOutcome struct {
	Success bool
	Result  json.RawMessage // present when Success
	Err     string          // present when !Success
}

// ToolHook is the hook interface: before_call may reject a call outright;
// after_call observes (and may log) the outcome but never changes whether
// the caller sees success or failure.
type ToolHook interface {
	BeforeCall(ctx *HookContext, params json.RawMessage) error
	AfterCall(ctx *HookContext, outcome *ToolCallOutcome) error
	Name() string
}

// ScopedHook pairs a hook with the scope it runs under.
type ScopedHook struct {
	Scope HookScope
	Hook  ToolHook
}

// Pipeline is an ordered chain of scoped hooks. before_call runs hooks in
// order, short-circuiting on the first error — neither later hooks nor the
// tool call itself run. after_call runs, in reverse, only over the hooks
// before the rejecting one (all of them when none rejected), short-circuiting at the first after_call
// error; the pipeline's caller discards that error unconditionally.
type Pipeline struct {
	hooks []ScopedHook
}

// New builds a pipeline from an ordered list of scoped hooks.
func New(hooks ...ScopedHook) *Pipeline {
	return &Pipeline{hooks: append([]ScopedHook(nil), hooks...)}
}

// Add appends one scoped hook to the pipeline, in the order hooks should
// run before_call (and the reverse order they run after_call).
func (p *Pipeline) Add(scope HookScope, hook ToolHook) {
	p.hooks = append(p.hooks, ScopedHook{Scope: scope, Hook: hook})
}

// RunBefore executes before_call for every hook whose scope matches ctx, in
// pipeline order, stopping at (and returning) the first error.
func (p *Pipeline) RunBefore(ctx *HookContext, params json.RawMessage) (ranThrough int, err error) {
	start := time.Now()
	defer func() {
		observe.DefaultMetrics().HookDuration.Record(context.Background(), time.Since(start).Seconds())
	}()
	for i, sh := range p.hooks {
		if !sh.Scope.matches(ctx) {
			continue
		}
		if err := sh.Hook.BeforeCall(ctx, params); err != nil {
			return i, err
		}
	}
	return len(p.hooks), nil
}

// RunAfter executes after_call in reverse pipeline order for every matching
// hook up to and including index ranThrough-1 (the hooks whose before_call
// ran and succeeded). It stops at the first after_call error but the return
// value exists only for logging — callers must never let it fail the
// response.
func (p *Pipeline) RunAfter(ctx *HookContext, outcome *ToolCallOutcome, ranThrough int) error {
	start := time.Now()
	defer func() {
		observe.DefaultMetrics().HookDuration.Record(context.Background(), time.Since(start).Seconds())
	}()
	for i := ranThrough - 1; i >= 0; i-- {
		sh := p.hooks[i]
		if !sh.Scope.matches(ctx) {
			continue
		}
		if err := sh.Hook.AfterCall(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}
