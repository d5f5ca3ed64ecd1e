package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/store"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// countingConnector returns a Connector that records how many times it was
// invoked and never actually dials anything — pool only stores the returned
// session/cancel pair, it never calls through either, so nil session values
// are safe stand-ins in tests.
func countingConnector() (Connector, *int32) {
	var calls int32
	connect := Connector(func(_ context.Context, _ store.Provider) (*mcpsdk.ClientSession, context.CancelFunc, error) {
		atomic.AddInt32(&calls, 1)
		return nil, func() {}, nil
	})
	return connect, &calls
}

func stdioProvider(name string) store.Provider {
	return store.Provider{ID: uuid.New(), Name: name, Transport: config.TransportStdio}
}

func httpProvider(name string) store.Provider {
	return store.Provider{ID: uuid.New(), Name: name, Transport: config.TransportHTTP}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestGetOrConnectReusesExistingSession(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	connect, calls := countingConnector()
	prov := httpProvider("demo")

	ctx := context.Background()
	if _, err := p.GetOrConnect(ctx, prov, connect); err != nil {
		t.Fatalf("GetOrConnect #1: %v", err)
	}
	if _, err := p.GetOrConnect(ctx, prov, connect); err != nil {
		t.Fatalf("GetOrConnect #2: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("connector called %d times, want 1", got)
	}
}

func TestGetOrConnectConcurrentCallersShareOneConnect(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	connect, calls := countingConnector()
	prov := httpProvider("demo")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.GetOrConnect(context.Background(), prov, connect); err != nil {
				t.Errorf("GetOrConnect: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("connector called %d times, want 1", got)
	}
}

func TestReserveStdioSlotEvictsOldestOnPressure(t *testing.T) {
	p, err := New(Options{MaxStdioProcesses: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	connect, _ := countingConnector()

	first := stdioProvider("first")
	second := stdioProvider("second")
	third := stdioProvider("third")

	ctx := context.Background()
	if _, err := p.GetOrConnect(ctx, first, connect); err != nil {
		t.Fatalf("connect first: %v", err)
	}
	// Ensure distinct lastAccessedMs values so LRU order is well-defined.
	time.Sleep(2 * time.Millisecond)
	if _, err := p.GetOrConnect(ctx, second, connect); err != nil {
		t.Fatalf("connect second: %v", err)
	}

	if _, err := p.GetOrConnect(ctx, third, connect); err != nil {
		t.Fatalf("connect third (should evict first): %v", err)
	}

	p.mu.RLock()
	_, firstStillPresent := p.entries[first.ID.String()]
	_, thirdPresent := p.entries[third.ID.String()]
	p.mu.RUnlock()

	if firstStillPresent {
		t.Error("expected first entry to be evicted under stdio pressure")
	}
	if !thirdPresent {
		t.Error("expected third entry to be present after connect")
	}
	if got := p.stdioCount.Load(); got != 2 {
		t.Errorf("stdioCount = %d, want 2", got)
	}
}

func TestRemoveTearsDownSession(t *testing.T) {
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	connect, _ := countingConnector()
	prov := stdioProvider("demo")

	if _, err := p.GetOrConnect(context.Background(), prov, connect); err != nil {
		t.Fatalf("GetOrConnect: %v", err)
	}
	p.Remove(prov.ID.String())

	p.mu.RLock()
	_, ok := p.entries[prov.ID.String()]
	p.mu.RUnlock()
	if ok {
		t.Error("expected entry to be removed")
	}
	if got := p.stdioCount.Load(); got != 0 {
		t.Errorf("stdioCount = %d, want 0 after removal", got)
	}
}

func TestSweepIdleEvictsOnlyStaleStdio(t *testing.T) {
	p, err := New(Options{IdleTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	connect, _ := countingConnector()

	stale := stdioProvider("stale")
	fresh := stdioProvider("fresh")
	httpProv := httpProvider("http-stays")

	ctx := context.Background()
	if _, err := p.GetOrConnect(ctx, stale, connect); err != nil {
		t.Fatalf("connect stale: %v", err)
	}
	if _, err := p.GetOrConnect(ctx, httpProv, connect); err != nil {
		t.Fatalf("connect http: %v", err)
	}

	time.Sleep(15 * time.Millisecond)

	if _, err := p.GetOrConnect(ctx, fresh, connect); err != nil {
		t.Fatalf("connect fresh: %v", err)
	}

	p.sweepIdle()

	p.mu.RLock()
	_, staleStillPresent := p.entries[stale.ID.String()]
	_, freshPresent := p.entries[fresh.ID.String()]
	_, httpPresent := p.entries[httpProv.ID.String()]
	p.mu.RUnlock()

	if staleStillPresent {
		t.Error("expected stale stdio entry to be reaped")
	}
	if !freshPresent {
		t.Error("expected freshly connected stdio entry to survive")
	}
	if !httpPresent {
		t.Error("expected http entry to never be reaped by idleness")
	}
}
