package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
	"github.com/fiscalflow/fiscalflow/internal/persistence/sqlstore"
)

// Config holds database connection configuration
type Config struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite3",
		DSN:             SQLiteDSN("fiscalflow.db"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// SQLiteDSN builds the file DSN with the pragmas concurrent batch workers
// need: WAL for parallel readers, a busy timeout instead of immediate
// SQLITE_BUSY, and enforced foreign keys.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
}

// FromAppConfig maps the application configuration onto a connection config.
func FromAppConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Driver = cfg.Database.Driver
	c.QueryTimeout = cfg.QueryTimeout()
	if cfg.Database.MaxOpenConns > 0 {
		c.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		c.MaxIdleConns = cfg.Database.MaxIdleConns
	}

	switch cfg.Database.Driver {
	case "postgres":
		c.DSN = cfg.Database.DSN
	default:
		c.DSN = SQLiteDSN(cfg.DatabasePath)
	}

	return c
}

// Manager manages the database connection and repository instances
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens the configured database, bootstraps the schema and wires
// the repositories.
func NewManager(config Config) (*Manager, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlstore.Bootstrap(ctx, db, config.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return &Manager{
		db:     db,
		config: config,
		repos:  sqlstore.NewRepository(db, config.QueryTimeout),
		health: &healthChecker{
			db:      db,
			timeout: config.QueryTimeout,
		},
	}, nil
}

// Repository returns the repository collection
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the health checker interface
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// DB returns the underlying database connection (for migrations, etc.)
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Driver returns the configured driver name
func (m *Manager) Driver() string {
	return m.config.Driver
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Health returns current repository health status
func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var errors []string
	healthy := true

	if err := h.db.PingContext(pingCtx); err != nil {
		errors = append(errors, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	connectionPool := map[string]int{
		"max_open":      stats.MaxOpenConnections,
		"open":          stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait_count":    int(stats.WaitCount),
		"wait_duration": int(stats.WaitDuration.Milliseconds()),
	}

	return persistence.HealthCheck{
		Healthy:        healthy,
		Errors:         errors,
		ConnectionPool: connectionPool,
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

// Ping tests basic connectivity to the database
func (h *healthChecker) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	return h.db.PingContext(pingCtx)
}
