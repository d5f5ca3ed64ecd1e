package config

import (
	"strings"
	"testing"
)

func TestLoadFromReaderValid(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8085"
  log_level: "info"
database:
  dsn: "postgres://localhost/broker"
  embedding_dimensions: 768
embeddings:
  backend: "local-network"
  model: "nomic-embed-text"
  base_url: "http://localhost:11434"
vault:
  passphrase: "dev-only"
pool:
  max_stdio_processes: 10
  idle_timeout: "1m"
providers:
  - name: "filesystem"
    transport: "stdio"
    command: "mcp-fs-server"
  - name: "weather"
    transport: "http"
    url: "http://localhost:9000/mcp"
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8085" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Pool.MaxStdioProcesses != 10 {
		t.Errorf("MaxStdioProcesses = %d, want 10", cfg.Pool.MaxStdioProcesses)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
}

func TestLoadFromReaderAppliesPoolDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`server: {log_level: "info"}`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Pool.MaxStdioProcesses != DefaultMaxStdioProcesses {
		t.Errorf("MaxStdioProcesses = %d, want default %d", cfg.Pool.MaxStdioProcesses, DefaultMaxStdioProcesses)
	}
	if cfg.Pool.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want default %v", cfg.Pool.IdleTimeout, DefaultIdleTimeout)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`server: {log_level: "verbose"}`))
	if err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestValidateRejectsDuplicateProviderNames(t *testing.T) {
	yaml := `
providers:
  - name: "dup"
    transport: "http"
    url: "http://a"
  - name: "dup"
    transport: "http"
    url: "http://b"
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error for duplicate provider names")
	}
}

func TestValidateRequiresCommandForStdio(t *testing.T) {
	yaml := `
providers:
  - name: "fs"
    transport: "stdio"
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error for missing stdio command")
	}
}

func TestValidateRequiresURLForHTTP(t *testing.T) {
	yaml := `
providers:
  - name: "web"
    transport: "http"
`
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error for missing http url")
	}
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_top_level: true\n"))
	if err == nil {
		t.Fatal("expected decode error for unknown top-level field")
	}
}
