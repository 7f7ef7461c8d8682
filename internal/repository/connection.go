package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Driver names registered by the two SQLite drivers
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = "sqlite"  // modernc.org/sqlite (pure Go)
)

// DefaultLockTimeout bounds how long a connection waits on a locked database
const DefaultLockTimeout = 10 * time.Second

var errInMemoryPath = errors.New("in-memory databases do not survive per-operation connections")

// ConnectionManager opens one connection to the store per logical operation.
// There is no pooling: every Acquire is paired with a Release.
type ConnectionManager struct {
	path        string
	driver      string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// ConnectionOption configures a ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithDriver selects the registered SQLite driver (DriverMattn or DriverModernc)
func WithDriver(name string) ConnectionOption {
	return func(m *ConnectionManager) {
		if name != "" {
			m.driver = name
		}
	}
}

// WithLockTimeout sets the busy wait applied to every connection
func WithLockTimeout(d time.Duration) ConnectionOption {
	return func(m *ConnectionManager) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithLogger sets the logger used for connection lifecycle events
func WithLogger(l *slog.Logger) ConnectionOption {
	return func(m *ConnectionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewConnectionManager creates a manager for the database file at path
func NewConnectionManager(path string, opts ...ConnectionOption) *ConnectionManager {
	m := &ConnectionManager{
		path:        path,
		driver:      DriverMattn,
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the database file path
func (m *ConnectionManager) Path() string { return m.path }

// Driver returns the SQL driver name in use
func (m *ConnectionManager) Driver() string { return m.driver }

// Logger returns the logger shared with components built on this manager
func (m *ConnectionManager) Logger() *slog.Logger { return m.logger }

// dsn builds the driver-specific data source name. Both variants set the busy
// timeout and turn on foreign key enforcement, which cascades depend on.
func (m *ConnectionManager) dsn() (string, error) {
	ms := m.lockTimeout.Milliseconds()
	switch m.driver {
	case DriverMattn:
		return fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on", m.path, ms), nil
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", m.path, ms), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", m.driver)
	}
}

// Acquire opens a new connection and verifies it is usable
func (m *ConnectionManager) Acquire(ctx context.Context) (*sql.DB, error) {
	if m.path == "" {
		return nil, m.fail(errors.New("database path is empty"))
	}
	if m.path == ":memory:" {
		return nil, m.fail(errInMemoryPath)
	}

	dsn, err := m.dsn()
	if err != nil {
		return nil, m.fail(err)
	}

	db, err := sql.Open(m.driver, dsn)
	if err != nil {
		return nil, m.fail(fmt.Errorf("failed to open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// sql.Open is lazy; ping so that a bad path fails here and not mid-transaction
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, m.fail(fmt.Errorf("failed to ping database: %w", err))
	}

	// Reading the catalog takes a shared lock, so a file that is not a
	// database, or one held locked past the timeout, fails here too
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, m.fail(fmt.Errorf("failed to read database: %w", err))
	}

	m.logger.Debug("database connection opened", "path", m.path, "driver", m.driver)
	return db, nil
}

// Release closes a connection obtained from Acquire. Close failures are
// logged only; the operation's outcome is already settled.
func (m *ConnectionManager) Release(db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		m.logger.Warn("failed to close database connection", "path", m.path, "error", err)
		return
	}
	m.logger.Debug("database connection closed", "path", m.path)
}

func (m *ConnectionManager) fail(err error) *ConnectionError {
	m.logger.Error("database connection error", "path", m.path, "driver", m.driver, "error", err)
	return &ConnectionError{Path: m.path, Err: err}
}
