package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingsBackends lists the recognised embedding backend names.
// Used by [Validate] to warn about unrecognised backend names.
var ValidEmbeddingsBackends = []string{"hosted", "local-network", "deterministic"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Pool.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Embeddings.Backend != "" && !validBackendName(cfg.Embeddings.Backend) {
		slog.Warn("unknown embeddings backend — may be a typo",
			"backend", cfg.Embeddings.Backend,
			"known", ValidEmbeddingsBackends,
		)
	}
	if cfg.Embeddings.Backend != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("embeddings backend is configured but database.embedding_dimensions is not set; no default is applied")
	}
	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; the broker cannot persist tools, config values, or audit entries")
	}

	namesSeen := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers[%d]", prefix, p.Name, prev))
			}
			namesSeen[p.Name] = i
		}
		if !p.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: http, stdio, sse", prefix, p.Transport))
			continue
		}
		switch p.Transport {
		case TransportStdio:
			if p.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case TransportHTTP, TransportSSE:
			if p.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is %s", prefix, p.Transport))
			}
		}
	}

	return errors.Join(errs...)
}

func validBackendName(name string) bool {
	for _, b := range ValidEmbeddingsBackends {
		if b == name {
			return true
		}
	}
	return false
}
