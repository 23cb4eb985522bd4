package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver for local development

	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Manager owns the primary connection pool and any read replicas.
// Writes and read-your-writes queries use Primary; reporting queries that
// tolerate replication lag may use Reader.
type Manager struct {
	driver   string
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
}

// Open connects to the primary and replicas described by cfg.
// A replica that fails to connect is logged and skipped.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *observability.Logger) (*Manager, error) {
	primary, err := openPool(ctx, cfg, cfg.URL, cfg.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}

	m := &Manager{driver: cfg.Driver, primary: primary}

	for i, url := range cfg.ReplicaURLs {
		maxConns := cfg.MaxOpenConns / 2
		if maxConns < 2 {
			maxConns = 2
		}
		replica, err := openPool(ctx, cfg, url, maxConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable read replica")
			continue
		}
		m.replicas = append(m.replicas, replica)
	}

	return m, nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, url)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		// one connection serializes writers and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewManager wraps an already-open pool, used by tests and tools
func NewManager(driver string, primary *sql.DB) *Manager {
	return &Manager{driver: driver, primary: primary}
}

func (m *Manager) Driver() string {
	return m.driver
}

func (m *Manager) Primary() *sql.DB {
	return m.primary
}

// Reader returns a replica chosen round-robin, or the primary when none are configured
func (m *Manager) Reader() *sql.DB {
	if len(m.replicas) == 0 {
		return m.primary
	}
	idx := atomic.AddUint32(&m.current, 1)
	return m.replicas[int(idx)%len(m.replicas)]
}

// Close closes every pool
func (m *Manager) Close() error {
	var firstErr error
	for _, replica := range m.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
