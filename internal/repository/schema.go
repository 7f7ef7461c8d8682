package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SchemaManager creates the vocabulary schema. All four tables live in a
// single migration, which the migration driver runs inside one transaction,
// so a failure leaves no partial schema behind. The version record of a
// failed run is reset, so the next call tries again.
type SchemaManager struct {
	driver string
	logger *slog.Logger
}

// NewSchemaManager creates a schema manager for connections opened with driver
func NewSchemaManager(driver string, logger *slog.Logger) *SchemaManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaManager{driver: driver, logger: logger}
}

// CreateSchema creates any missing tables. Calling it on an up-to-date
// database is a no-op.
func (s *SchemaManager) CreateSchema(ctx context.Context, db *sql.DB) error {
	if err := ctx.Err(); err != nil {
		return &SchemaError{Err: err}
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return s.fail(fmt.Errorf("failed to load migrations: %w", err))
	}
	defer src.Close()

	drv, err := s.databaseDriver(db)
	if err != nil {
		return s.fail(fmt.Errorf("failed to prepare migration driver: %w", err))
	}

	// m.Close is never called: it would close db, which belongs to the caller
	m, err := migrate.NewWithInstance("iofs", src, s.driver, drv)
	if err != nil {
		return s.fail(fmt.Errorf("failed to create migrator: %w", err))
	}
	m.Log = migrateLogger{s.logger}

	if err := s.clearDirty(m, src); err != nil {
		return s.fail(fmt.Errorf("failed to reset dirty schema version: %w", err))
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		s.logger.Debug("schema already up to date")
		return nil
	}
	if err != nil {
		if cerr := s.clearDirty(m, src); cerr != nil {
			s.logger.Error("failed to reset dirty schema version", "error", cerr)
		}
		return s.fail(err)
	}

	version, _, _ := m.Version()
	s.logger.Info("database schema created", "version", version)
	return nil
}

// clearDirty moves a dirty version record back to the last clean version.
// Every migration runs inside its own transaction, so a dirty record never
// has partial DDL behind it and the failed migration can simply run again.
func (s *SchemaManager) clearDirty(m *migrate.Migrate, src source.Driver) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return nil
	}
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	target := database.NilVersion
	if prev, err := src.Prev(version); err == nil {
		target = int(prev)
	}
	s.logger.Warn("resetting dirty schema version", "version", version, "reset_to", target)
	return m.Force(target)
}

func (s *SchemaManager) databaseDriver(db *sql.DB) (database.Driver, error) {
	switch s.driver {
	case DriverMattn:
		return migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	case DriverModernc:
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported driver %q", s.driver)
	}
}

func (s *SchemaManager) fail(err error) *SchemaError {
	s.logger.Error("schema creation failed", "error", err)
	return &SchemaError{Err: err}
}

// migrateLogger routes migration progress to slog at debug level
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool { return false }
