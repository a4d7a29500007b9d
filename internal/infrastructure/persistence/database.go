package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// connectBackoff is the pause after the first failed ping; it doubles per attempt
const connectBackoff = 500 * time.Millisecond

// Database is the ledger store handle shared by the repositories
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase opens the PostgreSQL pool described by cfg and waits until
// the server answers, pinging up to cfg.ConnectAttempts times. Driver errors
// are translated, so unique violations surface as gorm.ErrDuplicatedKey.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger gormlogger.Interface) (*Database, error) {
	if logger == nil {
		logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	d, err := wrap(gdb)
	if err != nil {
		return nil, err
	}
	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	d.sql.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := d.waitReady(ctx, cfg.ConnectAttempts); err != nil {
		_ = d.sql.Close()
		return nil, err
	}
	return d, nil
}

func wrap(gdb *gorm.DB) (*Database, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	return &Database{DB: gdb, sql: sqlDB}, nil
}

func (d *Database) waitReady(ctx context.Context, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	pause := connectBackoff
	var err error
	for i := 1; ; i++ {
		if err = d.sql.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready: %w", ctx.Err())
		case <-time.After(pause):
		}
		pause *= 2
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

// SQL exposes the pool for migrations and pool metrics
func (d *Database) SQL() *sql.DB {
	return d.sql
}

func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.sql.Close()
}
