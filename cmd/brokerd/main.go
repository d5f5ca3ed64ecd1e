// Command brokerd is the main entry point for the MCP tool broker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/embeddings"
	"github.com/brokermcp/broker/internal/gateway"
	"github.com/brokermcp/broker/internal/health"
	"github.com/brokermcp/broker/internal/hooks"
	"github.com/brokermcp/broker/internal/metatool"
	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/pool"
	"github.com/brokermcp/broker/internal/store"
	"github.com/brokermcp/broker/internal/vault"
)

// toolEmbeddingTable is the pgvector-backed table the store migrates and the
// embedding index reads/writes. A fixed name keeps migration and query code
// from needing to thread a table name argument everywhere.
const toolEmbeddingTable = "tool_embeddings"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "brokerd: config file %q not found — pass -config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "brokerd: %v\n", err)
		}
		return 1
	}
	cfg.Pool.ApplyDefaults()

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("brokerd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"providers", len(cfg.Providers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "brokerd"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()

	v := vault.New(cfg.Vault.Passphrase)

	st, err := store.Open(ctx, cfg.Database.DSN, toolEmbeddingTable, cfg.Database.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	configCache := config.NewCache()
	if err := seedConfigDefinitions(ctx, st); err != nil {
		slog.Error("failed to seed config definitions", "err", err)
		return 1
	}

	resolver := &embeddings.Resolver{Store: st, Cache: configCache, Vault: v}
	resolved, err := resolver.Resolve(ctx)
	if err != nil {
		slog.Error("failed to resolve embedding backend", "err", err)
		return 1
	}
	embedder, err := embeddings.Build(resolved, cfg.Database.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to build embedding provider", "err", err)
		return 1
	}
	slog.Info("embedding backend resolved", "backend", resolved.Backend, "model", resolved.Model)

	p, err := pool.New(pool.Options{
		MaxStdioProcesses: cfg.Pool.MaxStdioProcesses,
		IdleTimeout:       cfg.Pool.IdleTimeout,
		ManifestPath:      cfg.Pool.ManifestPath,
	})
	if err != nil {
		slog.Error("failed to construct provider pool", "err", err)
		return 1
	}
	p.SpawnReaper()
	defer p.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "brokerd", Version: "1.0.0"}, nil)
	connector := pool.NewConnector(client, p.Manifest())

	if err := syncProviders(ctx, st, connector, cfg.Providers); err != nil {
		slog.Error("failed to sync configured providers", "err", err)
		return 1
	}

	pipeline := hooks.DefaultPipeline(st, logger)

	service := &metatool.Service{
		Store:          st,
		Embedder:       embedder,
		Pool:           p,
		Hooks:          pipeline,
		Connect:        connector,
		EmbeddingTable: toolEmbeddingTable,
		Cache:          configCache,
	}

	reindexResult, err := service.ReindexAll(ctx)
	if err != nil {
		slog.Error("initial reindex failed", "err", err)
		return 1
	}
	slog.Info("initial reindex complete",
		"indexed", reindexResult.IndexedCount,
		"providers", reindexResult.ProviderCount,
		"errors", len(reindexResult.Errors),
	)

	// The top-level server/database sections require a restart to take
	// effect, but the provider list and the embedding ConfigValue cache are
	// re-read live: editing config.yaml's providers section re-syncs and
	// reindexes without a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		configCache.Clear()
		if err := syncProviders(ctx, st, connector, updated.Providers); err != nil {
			slog.Error("config watcher: provider sync failed", "err", err)
			return
		}
		result, err := service.ReindexAll(ctx)
		if err != nil {
			slog.Error("config watcher: reindex failed", "err", err)
			return
		}
		slog.Info("config watcher: providers resynced", "indexed", result.IndexedCount)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	getServer := func(*http.Request) *mcpsdk.Server {
		return metatool.NewServer(service, &mcpsdk.Implementation{Name: "broker", Version: "1.0.0"})
	}

	checkers := []health.Checker{
		{Name: "database", Check: func(ctx context.Context) error {
			return st.Pool().Ping(ctx)
		}},
	}

	gw := gateway.New(gateway.Config{Addr: cfg.Server.ListenAddr}, st, getServer, logger, st, configCache, checkers...)

	printStartupSummary(cfg, resolved)

	serveErr := make(chan error, 1)
	go func() {
		if err := gw.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("gateway listen error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown error", "err", err)
		return 1
	}
	// p.Close() and st.Close() run via defer, in reverse declaration order
	// (pool before store), so in-flight tool calls have already drained by
	// the time either teardown runs.
	slog.Info("goodbye")
	return 0
}

// syncProviders reconciles the YAML-declared provider list into the store:
// each entry is upserted by name (preserving its existing id so pooled
// connections and audit history survive a restart), then its tool manifest
// is rediscovered over a live connection and persisted.
func syncProviders(ctx context.Context, st *store.Store, connect pool.Connector, entries []config.ProviderEntry) error {
	for _, e := range entries {
		if e.Disabled {
			slog.Debug("provider disabled, skipping sync", "name", e.Name)
			continue
		}
		if !e.Transport.IsValid() {
			return fmt.Errorf("provider %s: invalid transport %q", e.Name, e.Transport)
		}

		id := uuid.Must(uuid.NewV7())
		if existing, err := st.GetProviderByName(ctx, e.Name); err == nil {
			id = existing.ID
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("provider %s: lookup existing: %w", e.Name, err)
		}

		connConfig, err := json.Marshal(struct {
			Command string            `json:"command"`
			URL     string            `json:"url"`
			Env     map[string]string `json:"env"`
		}{Command: e.Command, URL: e.URL, Env: e.Env})
		if err != nil {
			return fmt.Errorf("provider %s: marshal connection config: %w", e.Name, err)
		}

		visibility := store.VisibilityVisible
		if e.Hidden {
			visibility = store.VisibilityHidden
		}

		prov := store.Provider{
			ID:          id,
			Name:        e.Name,
			Description: e.Description,
			Domain:      e.Domain,
			Transport:   e.Transport,
			Config:      connConfig,
			Visibility:  visibility,
			Enabled:     true,
			Ownership:   store.OwnershipBuiltIn,
		}
		if err := st.UpsertProvider(ctx, prov); err != nil {
			return fmt.Errorf("provider %s: upsert: %w", e.Name, err)
		}

		if err := discoverTools(ctx, st, connect, prov); err != nil {
			slog.Warn("provider tool discovery failed, keeping previous manifest", "provider", e.Name, "err", err)
			continue
		}
		slog.Info("provider synced", "name", e.Name, "transport", e.Transport)
	}
	return nil
}

// discoverTools connects to prov, lists its tools over the live session,
// and replaces its stored manifest. The connection is not pooled — a
// short-lived session is enough for a one-shot manifest scan, and the pool
// dials its own session on first real tool call.
func discoverTools(ctx context.Context, st *store.Store, connect pool.Connector, prov store.Provider) error {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	session, sessionCancel, err := connect(connectCtx, prov)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sessionCancel()
	defer session.Close()

	var tools []store.Tool
	for tool, err := range session.Tools(connectCtx, nil) {
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("marshal schema for tool %s: %w", tool.Name, err)
		}
		tools = append(tools, store.Tool{
			ProviderID:  prov.ID,
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schema,
		})
	}

	if err := st.ReplaceTools(ctx, prov.ID, tools); err != nil {
		return fmt.Errorf("replace tools: %w", err)
	}
	return nil
}

// seedConfigDefinitions registers the handful of built-in ConfigDefinition
// rows the broker resolves through GetEffectiveValue. Embedding-backend keys
// are not seeded here, and no other code seeds them either;
// this covers general broker behavior exposed for per-user override via the
// /config admin endpoint.
func seedConfigDefinitions(ctx context.Context, st *store.Store) error {
	defs := []store.ConfigDefinition{
		{
			Key:          "discover_tools.max_results",
			Category:     "discovery",
			ValueType:    "int",
			DisplayHint:  "Maximum tool hits returned by discover_tools",
			DefaultValue: "10",
		},
	}
	for _, d := range defs {
		if err := st.UpsertConfigDefinition(ctx, d); err != nil {
			return fmt.Errorf("seed config definition %s: %w", d.Key, err)
		}
	}
	return nil
}

func printStartupSummary(cfg *config.Config, resolved embeddings.Resolved) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          brokerd — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Providers       : %-19d ║\n", len(cfg.Providers))
	fmt.Printf("║  Embedding       : %-19s ║\n", truncate(resolved.Backend+"/"+resolved.Model, 19))
	fmt.Printf("║  Max stdio procs : %-19d ║\n", cfg.Pool.MaxStdioProcesses)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
