package hooks

import "log/slog"

// StoreDeps is the slice of *store.Store the default pipeline's built-in
// hooks need.
type StoreDeps interface {
	auditStore
	accessStore
}

// DefaultPipeline builds the built-in pipeline: Audit, then AccessControl,
// both scoped globally.
func DefaultPipeline(store StoreDeps, logger *slog.Logger) *Pipeline {
	return New(
		ScopedHook{Scope: Global(), Hook: NewAuditHook(store, logger)},
		ScopedHook{Scope: Global(), Hook: NewAccessControlHook(store)},
	)
}
