package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brokermcp/broker/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  - name: filesystem
    transport: stdio
    command: mcp-fs-server
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  - name: filesystem
    transport: stdio
    command: mcp-fs-server
  - name: weather
    transport: http
    url: "http://localhost:9000/mcp"
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if len(cfg.Providers) != 1 {
		t.Errorf("Providers: got %d, want 1", len(cfg.Providers))
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var calls int
	onChange := func(_, _ *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	w, err := config.NewWatcher(cfgPath, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// Ensure mtime actually advances across filesystems with coarse resolution.
	time.Sleep(30 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cfg := w.Current()
	if len(cfg.Providers) != 2 {
		t.Errorf("Providers after reload: got %d, want 2", len(cfg.Providers))
	}
	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("expected onChange to be invoked at least once")
	}
}

func TestWatcher_IgnoresInvalidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(150 * time.Millisecond)

	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("expected stale valid config to be retained, got log_level %q", cfg.Server.LogLevel)
	}
}
