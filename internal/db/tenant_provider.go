// internal/db/tenant_provider.go
package db

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/syagroup/bulksms-backend/internal/model"
)

// TenantDBProvider hands out connections to tenant-isolated databases. The
// credentials live on the tenant row in the main DB; pools are cached per
// tenant so repeated batches reuse connections.
type TenantDBProvider struct {
	mu    sync.Mutex
	pools map[int64]*sql.DB

	// fewer connections than the main pool: one runner per tenant means
	// little concurrency against a tenant DB
	maxOpenConns int
}

func NewTenantDBProvider() *TenantDBProvider {
	return &TenantDBProvider{
		pools:        make(map[int64]*sql.DB),
		maxOpenConns: 5,
	}
}

// ForTenant returns a pooled connection to the tenant's isolated database,
// opening and caching it on first use.
func (p *TenantDBProvider) ForTenant(t *model.Tenant) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.pools[t.ID]; ok {
		return conn, nil
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		t.DBUser, t.DBPassword, t.DBHost, t.DBPort, t.DBName,
	)
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant %d database: %w", t.ID, err)
	}
	conn.SetMaxOpenConns(p.maxOpenConns)
	conn.SetMaxIdleConns(p.maxOpenConns)
	conn.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping tenant %d database: %w", t.ID, err)
	}

	p.pools[t.ID] = conn
	return conn, nil
}

// Close closes every cached tenant pool.
func (p *TenantDBProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, conn := range p.pools {
		conn.Close()
		delete(p.pools, id)
	}
}
