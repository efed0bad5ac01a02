package service

import (
	"sync"
	"time"
)

// runnerGuard enforces the single-runner-per-tenant invariant inside the
// executing process. A duplicate invocation that fails to acquire exits
// without side effects, which is how at-least-once queue delivery is made
// safe.
type runnerGuard struct {
	mu       sync.Mutex
	active   map[int64]bool
	finished map[int64]time.Time
}

func newRunnerGuard() *runnerGuard {
	return &runnerGuard{
		active:   make(map[int64]bool),
		finished: make(map[int64]time.Time),
	}
}

// acquire marks the tenant's runner active. Returns false when a run is
// already in flight.
func (g *runnerGuard) acquire(tenantID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[tenantID] {
		return false
	}
	g.active[tenantID] = true
	return true
}

func (g *runnerGuard) release(tenantID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, tenantID)
	g.finished[tenantID] = time.Now()
}

func (g *runnerGuard) isActive(tenantID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[tenantID]
}

// idleSince reports how long ago the tenant's last run finished. Tenants
// that never ran report a very long idle time.
func (g *runnerGuard) idleSince(tenantID int64) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.finished[tenantID]
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(last)
}
