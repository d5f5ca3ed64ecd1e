// Package pool implements the Provider Pool: a cache of live MCP client
// sessions keyed by provider ID, with at-most-once-concurrent connect,
// LRU eviction of stdio sessions under process-count pressure, an idle
// reaper, and a crash-cleanup manifest for spawned child processes.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/resilience"
	"github.com/brokermcp/broker/internal/store"
)

// breakerMaxFailures and breakerResetTimeout tune the per-provider circuit
// breaker guarding GetOrConnect: a provider that fails this many connects in
// a row is given a cooldown before the pool tries it again, instead of every
// caller paying the full connect timeout on a provider that is currently
// down.
const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// DefaultMaxStdioProcesses and DefaultIdleTimeout mirror
// [config.DefaultMaxStdioProcesses] / [config.DefaultIdleTimeout]; Pool
// takes its own copies so it never needs to import the config package's
// YAML-facing defaults for anything but initial wiring.
const (
	DefaultMaxStdioProcesses = 50
	DefaultIdleTimeout       = 5 * time.Minute

	// connectTimeout bounds stdio child-process initialization.
	connectTimeout = 30 * time.Second
)

// entry is one live pool slot.
type entry struct {
	providerID string
	transport  config.TransportKind
	session    *mcpsdk.ClientSession
	cancel     context.CancelFunc

	createdAt      time.Time
	lastAccessedMs atomic.Int64 // monotonic ms offset from epoch
}

func (e *entry) touch(epoch time.Time) {
	e.lastAccessedMs.Store(time.Since(epoch).Milliseconds())
}

func (e *entry) idleFor(epoch time.Time) time.Duration {
	last := e.lastAccessedMs.Load()
	return time.Since(epoch) - time.Duration(last)*time.Millisecond
}

// Pool manages live MCP sessions for providers, reusing connections and
// tearing them down on idle, explicit removal, or LRU pressure.
//
// The zero value is not usable; construct with [New].
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry // key: provider ID string

	maxStdioProcesses int
	idleTimeout       time.Duration
	epoch             time.Time

	connecting singleflight.Group
	breakers   sync.Map // provider ID string -> *resilience.CircuitBreaker

	manifest *Manifest

	stdioCount atomic.Int32

	reaperStop chan struct{}
	reaperOnce sync.Once
}

// Options configures a new Pool.
type Options struct {
	MaxStdioProcesses int
	IdleTimeout       time.Duration
	ManifestPath      string
}

// New constructs a Pool. A zero-value field in opts falls back to the
// package default.
func New(opts Options) (*Pool, error) {
	maxStdio := opts.MaxStdioProcesses
	if maxStdio <= 0 {
		maxStdio = DefaultMaxStdioProcesses
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	var manifest *Manifest
	if opts.ManifestPath != "" {
		m, err := OpenManifest(opts.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("pool: open manifest: %w", err)
		}
		manifest = m
	}

	return &Pool{
		entries:           make(map[string]*entry),
		maxStdioProcesses: maxStdio,
		idleTimeout:       idleTimeout,
		epoch:             time.Now(),
		manifest:          manifest,
		reaperStop:        make(chan struct{}),
	}, nil
}

// Connector resolves and establishes the transport-specific connection for
// a provider. Supplied by the caller (cmd/brokerd) so Pool itself has no
// dependency on *store.Store's concrete type.
type Connector func(ctx context.Context, p store.Provider) (*mcpsdk.ClientSession, context.CancelFunc, error)

// breakerFor returns the circuit breaker guarding connects to provider id,
// creating it on first use.
func (p *Pool) breakerFor(id string) *resilience.CircuitBreaker {
	if cb, ok := p.breakers.Load(id); ok {
		return cb.(*resilience.CircuitBreaker)
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         id,
		MaxFailures:  breakerMaxFailures,
		ResetTimeout: breakerResetTimeout,
	})
	actual, _ := p.breakers.LoadOrStore(id, cb)
	return actual.(*resilience.CircuitBreaker)
}

// GetOrConnect returns a live session for provider, connecting it if
// necessary. Concurrent callers racing on the same provider ID observe a
// single connect; all of them receive the same resulting session or error.
func (p *Pool) GetOrConnect(ctx context.Context, prov store.Provider, connect Connector) (*mcpsdk.ClientSession, error) {
	id := prov.ID.String()
	start := time.Now()
	metrics := observe.DefaultMetrics()
	defer func() { metrics.PoolConnectDuration.Record(ctx, time.Since(start).Seconds()) }()

	// Fast path.
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if ok {
		e.touch(p.epoch)
		return e.session, nil
	}

	// singleflight.Group collapses concurrent connect attempts for the same
	// key into one execution; this plays the role the reference
	// implementation gives a hand-rolled `connecting: Mutex<HashSet>` guard.
	result, err, _ := p.connecting.Do(id, func() (any, error) {
		// Re-check: another goroutine may have finished connecting while we
		// waited to enter singleflight.
		p.mu.RLock()
		if e, ok := p.entries[id]; ok {
			p.mu.RUnlock()
			return e.session, nil
		}
		p.mu.RUnlock()

		if prov.Transport == config.TransportStdio {
			if err := p.reserveStdioSlot(); err != nil {
				return nil, err
			}
		}

		connectCtx, cancelTimeout := context.WithTimeout(ctx, connectTimeout)
		defer cancelTimeout()

		var session *mcpsdk.ClientSession
		var cancel context.CancelFunc
		err := p.breakerFor(id).Execute(func() error {
			s, c, cerr := connect(connectCtx, prov)
			if cerr != nil {
				return cerr
			}
			session, cancel = s, c
			return nil
		})
		if err != nil {
			if prov.Transport == config.TransportStdio {
				p.stdioCount.Add(-1)
			}
			wrapped := brokererr.New(brokererr.KindConnectionFailed,
				fmt.Sprintf("pool: connect to provider %s", prov.Name), err)
			metrics.RecordPoolConnectError(ctx, prov.Name, wrapped.Kind.String())
			return nil, wrapped
		}

		newEntry := &entry{
			providerID: id,
			transport:  prov.Transport,
			session:    session,
			cancel:     cancel,
			createdAt:  time.Now(),
		}
		newEntry.touch(p.epoch)

		p.mu.Lock()
		p.entries[id] = newEntry
		p.mu.Unlock()
		metrics.PooledConnections.Add(ctx, 1)
		if prov.Transport == config.TransportStdio {
			metrics.ActiveStdioProcesses.Add(ctx, 1)
		}

		if prov.Transport == config.TransportStdio && p.manifest != nil {
			if err := p.manifest.RecordSpawn(prov.Name); err != nil {
				return nil, fmt.Errorf("pool: record spawn in manifest: %w", err)
			}
		}

		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*mcpsdk.ClientSession), nil
}

// reserveStdioSlot attempts LRU eviction when the stdio process count has
// reached maxStdioProcesses, failing with KindResourceExhausted if no
// stdio entry can be evicted.
func (p *Pool) reserveStdioSlot() error {
	if int(p.stdioCount.Load()) < p.maxStdioProcesses {
		p.stdioCount.Add(1)
		return nil
	}

	if !p.evictOldestStdio() {
		return brokererr.New(brokererr.KindResourceExhausted,
			"pool: stdio process limit reached and no entry could be evicted", nil)
	}
	p.stdioCount.Add(1)
	return nil
}

// evictOldestStdio removes the least-recently-used stdio entry. Returns
// false if there is none to evict.
func (p *Pool) evictOldestStdio() bool {
	p.mu.Lock()
	var oldestID string
	var oldest *entry
	for id, e := range p.entries {
		if e.transport != config.TransportStdio {
			continue
		}
		if oldest == nil || e.lastAccessedMs.Load() < oldest.lastAccessedMs.Load() {
			oldestID, oldest = id, e
		}
	}
	if oldest == nil {
		p.mu.Unlock()
		return false
	}
	delete(p.entries, oldestID)
	p.mu.Unlock()

	oldest.cancel()
	p.stdioCount.Add(-1)
	observe.DefaultMetrics().ActiveStdioProcesses.Add(context.Background(), -1)
	observe.DefaultMetrics().PooledConnections.Add(context.Background(), -1)
	return true
}

// Remove tears down the session for provider, if present, and cancels any
// in-flight work on it.
func (p *Pool) Remove(providerIDStr string) {
	p.mu.Lock()
	e, ok := p.entries[providerIDStr]
	if ok {
		delete(p.entries, providerIDStr)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	e.cancel()
	if e.transport == config.TransportStdio {
		p.stdioCount.Add(-1)
		observe.DefaultMetrics().ActiveStdioProcesses.Add(context.Background(), -1)
	}
	observe.DefaultMetrics().PooledConnections.Add(context.Background(), -1)
}

// Manifest returns the pool's crash-cleanup manifest, or nil if none was
// configured. Callers building a [Connector] with [NewConnector] should
// share this instance rather than opening a second handle on the same
// file.
func (p *Pool) Manifest() *Manifest {
	return p.manifest
}

// Close tears down every live session. Called on broker shutdown.
func (p *Pool) Close() {
	p.reaperOnce.Do(func() { close(p.reaperStop) })

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	metrics := observe.DefaultMetrics()
	for _, e := range entries {
		e.cancel()
		if e.transport == config.TransportStdio {
			metrics.ActiveStdioProcesses.Add(context.Background(), -1)
		}
		metrics.PooledConnections.Add(context.Background(), -1)
	}
	if p.manifest != nil {
		p.manifest.Close()
	}
}
