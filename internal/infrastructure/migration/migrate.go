package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fleetbill/backend/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// schemaTable records the applied ledger schema version
const schemaTable = "lettrage_schema_migrations"

// Migrator applies the versioned ledger schema
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// NewEmbedded migrates db with the SQL files compiled into the binary
func NewEmbedded(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgresDriver(db)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return &Migrator{m: m, logger: logger.With(zap.String("source", "embedded"))}, nil
}

// NewFromDir migrates db with the SQL files found in dir
func NewFromDir(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgresDriver(db)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrate from %s: %w", dir, err)
	}
	return &Migrator{m: m, logger: logger.With(zap.String("source", dir))}, nil
}

func postgresDriver(db *sql.DB) (database.Driver, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: schemaTable})
	if err != nil {
		return nil, fmt.Errorf("init postgres migration driver: %w", err)
	}
	return driver, nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	return m.run("up", m.m.Up)
}

// Down reverts every applied migration
func (m *Migrator) Down() error {
	return m.run("down", m.m.Down)
}

// Steps applies n migrations forward, or -n backward when n is negative
func (m *Migrator) Steps(n int) error {
	return m.run(fmt.Sprintf("steps(%d)", n), func() error { return m.m.Steps(n) })
}

// run executes op, treating "nothing to do" as success, and logs the
// resulting schema version
func (m *Migrator) run(op string, fn func() error) error {
	err := fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info("Schema unchanged", zap.String("op", op))
		return nil
	case err != nil:
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Schema migrated",
		zap.String("op", op),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version reports the applied schema version; 0 means an empty schema
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Force marks version as applied and clean without running anything.
// It is the way out of a dirty schema after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force schema version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
