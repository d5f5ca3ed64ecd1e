// Package metatool implements the five meta-tools every client sees
// (discover_tools, list_tool_domains, browse_tool_domain, get_tool_schema,
// execute_tool) plus the reindex pipeline that keeps the tool index fresh,
// and wires both into an MCP server wrapped by the hook pipeline.
package metatool

import (
	"time"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/embeddings"
	"github.com/brokermcp/broker/internal/hooks"
	"github.com/brokermcp/broker/internal/pool"
	"github.com/brokermcp/broker/internal/store"
)

// maxResultsConfigKey is the ConfigDefinition discover_tools resolves
// per-caller (user-override → system → default) to decide how many hits to
// return. Seeded at startup; see cmd/brokerd.
const maxResultsConfigKey = "discover_tools.max_results"

// defaultMinSimilarity is the similarity floor discover_tools always applies;
// defaultTopK is its hit count when maxResultsConfigKey cannot be resolved
// or doesn't parse.
const (
	defaultTopK          = 10
	defaultMinSimilarity = 0.5

	// toolCallTimeout bounds a single execute_tool dispatch.
	toolCallTimeout = 30 * time.Second
)

// Service holds every dependency the meta-tool operations need. It is the
// receiver for the core operations in discovery.go, domains.go, schema.go,
// and execute.go; server.go wires its methods into an *mcp.Server.
type Service struct {
	Store          *store.Store
	Embedder       embeddings.Provider
	Pool           *pool.Pool
	Hooks          *hooks.Pipeline
	Connect        pool.Connector
	EmbeddingTable string

	// Cache backs GetEffectiveValue lookups (e.g. maxResultsConfigKey). May
	// be nil, in which case discovery falls back to defaultTopK.
	Cache *config.Cache
}
