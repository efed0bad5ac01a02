package service

import (
	"sync"

	"github.com/syagroup/bulksms-backend/internal/model"
)

// ProgressTracker keeps the last completed batch counts per tenant for
// progress polling. It is deliberately in-process and non-durable: a restart
// resets all counters to zero.
type ProgressTracker struct {
	mu       sync.RWMutex
	byTenant map[int64]model.BatchResult
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{byTenant: make(map[int64]model.BatchResult)}
}

// Set overwrites the tenant's last batch result.
func (p *ProgressTracker) Set(tenantID int64, result model.BatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTenant[tenantID] = result
}

// Get returns the tenant's last batch result, or zero counts if none was
// recorded.
func (p *ProgressTracker) Get(tenantID int64) model.BatchResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byTenant[tenantID]
}

// Reset zeroes the tenant's counters. Called on stop.
func (p *ProgressTracker) Reset(tenantID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTenant[tenantID] = model.BatchResult{}
}
