package pool

import (
	"context"
	"time"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/observe"
)

// SpawnReaper starts a background goroutine that evicts idle stdio
// sessions, sweeping at idleTimeout/4. HTTP and SSE sessions are never
// evicted by idleness since they hold no local process. Call Close to end
// the reaper.
func (p *Pool) SpawnReaper() {
	interval := p.idleTimeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	go p.reap(interval)
}

func (p *Pool) reap(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.reaperStop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	now := p.epoch

	var stale []*entry
	p.mu.Lock()
	for id, e := range p.entries {
		if e.transport != config.TransportStdio {
			continue
		}
		if e.idleFor(now) >= p.idleTimeout {
			stale = append(stale, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, e := range stale {
		e.cancel()
		p.stdioCount.Add(-1)
		observe.DefaultMetrics().ActiveStdioProcesses.Add(context.Background(), -1)
		observe.DefaultMetrics().PooledConnections.Add(context.Background(), -1)
	}
}
