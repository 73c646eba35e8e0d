package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	// DriverCgo is the mattn/go-sqlite3 driver.
	DriverCgo = "sqlite3"
	// DriverPure is the modernc.org/sqlite driver, which needs no cgo.
	DriverPure = "sqlite"

	defaultBusyTimeout        = 5 * time.Second
	defaultMaxOpenConns       = 8
	defaultStatementCacheSize = 16
)

// Hooks are optional callbacks invoked during the database lifecycle. They
// run after the corresponding schema work has committed.
type Hooks struct {
	OnCreate               func(ctx context.Context, db *sqlx.DB) error
	OnOpen                 func(ctx context.Context, db *sqlx.DB) error
	OnDestructiveMigration func(ctx context.Context, db *sqlx.DB) error
}

// Config holds configuration options for a Database.
type Config struct {
	Path               string        // Path to the database file, required
	Driver             string        // Optional, defaults to DriverCgo
	BusyTimeout        time.Duration // Optional, defaults to 5s
	MaxOpenConns       int           // Optional, defaults to 8
	StatementCacheSize int           // Optional, defaults to 16
	// FallbackToDestructiveMigration drops and recreates every table when the
	// on-disk schema version differs from the expected one. Without it, a
	// version change is a MigrationRequiredError.
	FallbackToDestructiveMigration bool
	Hooks                          []Hooks
	Logger                         *slog.Logger // Optional, defaults to slog.Default()
}

func (c Config) withDefaults() (Config, error) {
	if c.Path == "" {
		return c, fmt.Errorf("database path is required")
	}
	if c.Driver == "" {
		c.Driver = DriverCgo
	}
	if c.Driver != DriverCgo && c.Driver != DriverPure {
		return c, fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.StatementCacheSize == 0 {
		c.StatementCacheSize = defaultStatementCacheSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// dataSourceName builds the DSN for the configured driver. Both drivers get
// WAL journaling, a busy timeout, and immediate write transactions so that
// concurrent writers queue on the database lock instead of failing.
func (c Config) dataSourceName() string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	timeoutMs := c.BusyTimeout.Milliseconds()

	switch c.Driver {
	case DriverPure:
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeoutMs))
	default:
		params.Set("_journal_mode", "WAL")
		params.Set("_busy_timeout", fmt.Sprintf("%d", timeoutMs))
	}
	return "file:" + c.Path + "?" + params.Encode()
}
