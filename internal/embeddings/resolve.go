package embeddings

import (
	"context"
	"fmt"
	"os"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/vault"
)

// configValueStore is the slice of *store.Store the resolver needs. A
// narrow interface keeps Resolver testable without a live database.
type configValueStore interface {
	GetConfigValue(ctx context.Context, key string, scope config.Scope, userID string) (string, bool, error)
}

// Config keys resolved from the layered config store, with their
// system-scope defaults. Keeping these as constants lets the startup
// bootstrap (cmd/brokerd) seed matching ConfigDefinition rows.
const (
	KeyBackend = "embedding.backend"
	KeyModel   = "embedding.model"
	KeyBaseURL = "embedding.base_url"
	KeyAPIKey  = "embedding.api_key" // vault-encrypted

	DefaultBackendName  = "local-network"
	DefaultModelName    = "nomic-embed-text"
	DefaultBaseURLValue = DefaultLocalNetworkBaseURL
)

// Environment variables overlay a resolved value only when it still equals
// the ConfigDefinition default, per SPEC_FULL.md §4.2.
const (
	EnvBackend = "BROKER_EMBEDDING_PROVIDER"
	EnvModel   = "BROKER_EMBEDDING_MODEL"
	EnvBaseURL = "BROKER_EMBEDDING_BASE_URL"
	EnvAPIKey  = "BROKER_EMBEDDING_API_KEY"
)

// Resolved is the outcome of resolving the active embedding backend's
// configuration: which backend, which model, and its connection details.
type Resolved struct {
	Backend string
	Model   string
	BaseURL string
	APIKey  string // empty when absent; never logged
}

// Resolver resolves embedding configuration from the layered config store
// (system scope only — embedding backend selection is not a per-user
// setting), with environment variable fallback and vault decryption of the
// API key.
type Resolver struct {
	Store configValueStore
	Cache *config.Cache
	Vault *vault.Vault
}

// Resolve implements the algorithm from SPEC_FULL.md §4.2: admin config →
// env var fallback (only when the config value is still the definition
// default) → auto-promotion to the hosted backend when an API key is
// available and no explicit backend was configured.
func (r *Resolver) Resolve(ctx context.Context) (Resolved, error) {
	backend, err := r.systemValue(ctx, KeyBackend, DefaultBackendName)
	if err != nil {
		return Resolved{}, err
	}
	model, err := r.systemValue(ctx, KeyModel, DefaultModelName)
	if err != nil {
		return Resolved{}, err
	}
	baseURL, err := r.systemValue(ctx, KeyBaseURL, DefaultBaseURLValue)
	if err != nil {
		return Resolved{}, err
	}
	apiKey, err := r.resolveSecret(ctx, KeyAPIKey)
	if err != nil {
		return Resolved{}, err
	}

	envBackend, hasEnvBackend := os.LookupEnv(EnvBackend)
	if envModel, ok := os.LookupEnv(EnvModel); ok && model == DefaultModelName {
		model = envModel
	}
	if envURL, ok := os.LookupEnv(EnvBaseURL); ok && baseURL == DefaultBaseURLValue {
		baseURL = envURL
	}
	if backend == DefaultBackendName && hasEnvBackend {
		backend = envBackend
	}
	if apiKey == "" {
		if envKey, ok := os.LookupEnv(EnvAPIKey); ok {
			apiKey = envKey
		}
	}

	if apiKey != "" && !hasEnvBackend && backend == DefaultBackendName {
		backend = "hosted"
	}

	return Resolved{Backend: backend, Model: model, BaseURL: baseURL, APIKey: apiKey}, nil
}

// systemValue reads one system-scope config value, falling back to the
// cache and then the store, and caching the result.
func (r *Resolver) systemValue(ctx context.Context, key, fallback string) (string, error) {
	if v, ok := r.Cache.Get(key, config.ScopeSystem, ""); ok {
		return v, nil
	}
	v, found, err := r.Store.GetConfigValue(ctx, key, config.ScopeSystem, "")
	if err != nil {
		return "", fmt.Errorf("embeddings: resolve %s: %w", key, err)
	}
	if !found {
		v = fallback
	}
	r.Cache.Set(key, config.ScopeSystem, "", v)
	return v, nil
}

// resolveSecret reads and vault-decrypts a system-scope secret value,
// treating an empty decrypted value as absent.
func (r *Resolver) resolveSecret(ctx context.Context, key string) (string, error) {
	v, found, err := r.Store.GetConfigValue(ctx, key, config.ScopeSystem, "")
	if err != nil {
		return "", fmt.Errorf("embeddings: resolve secret %s: %w", key, err)
	}
	if !found || v == "" {
		return "", nil
	}
	return r.Vault.DecryptOrEmpty(v), nil
}

// Build constructs the Provider named by r, wiring in an httpClient only for
// the HTTP-backed backends.
func Build(r Resolved, dimensions int) (Provider, error) {
	switch r.Backend {
	case "hosted":
		return NewHosted(r.BaseURL, r.Model, r.APIKey, dimensions, nil)
	case "local-network":
		return NewLocalNetwork(r.BaseURL, r.Model, dimensions, nil)
	case "deterministic":
		return NewDeterministic(r.Model, dimensions), nil
	default:
		return nil, fmt.Errorf("embeddings: unknown backend %q", r.Backend)
	}
}
