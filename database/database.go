package database

// Database owns the SQL connection pool, bootstraps and validates the schema,
// and notifies the invalidation tracker after every committed write.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/tomyedwab/wifigrid/database/events"
)

type Database struct {
	db      *sqlx.DB
	schema  *Schema
	tracker *events.Tracker
	stmts   *statementCache
	hooks   []Hooks
	logger  *slog.Logger

	// Number of write transactions currently in flight
	activeTx atomic.Int32
}

// Open connects to the database file and brings its schema up to date. A
// database that fails validation is closed and the error returned.
func Open(ctx context.Context, config Config, schema *Schema) (*Database, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	conn, err := sqlx.ConnectContext(ctx, config.Driver, config.dataSourceName())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(config.MaxOpenConns)

	db := &Database{
		db:      conn,
		schema:  schema,
		tracker: events.NewTracker(config.Logger, schema.TableNames()...),
		stmts:   newStatementCache(conn, config.StatementCacheSize),
		hooks:   config.Hooks,
		logger:  config.Logger,
	}

	if err := db.bootstrap(ctx, config.FallbackToDestructiveMigration); err != nil {
		db.Close()
		return nil, err
	}

	db.logger.Info("Database initialized", "path", config.Path, "driver", config.Driver, "version", schema.Version)
	return db, nil
}

func (db *Database) bootstrap(ctx context.Context, destructive bool) error {
	var version int
	if err := db.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case version == 0:
		// A ledger left behind by a reset user_version would make Up a no-op
		if err := db.resetMigrationLedger(); err != nil {
			return err
		}
		if err := db.createAllTables(); err != nil {
			return err
		}
		if err := db.validate(ctx); err != nil {
			return err
		}
		if err := db.runHooks(ctx, func(h Hooks) hookFunc { return h.OnCreate }); err != nil {
			return err
		}

	case version != db.schema.Version:
		if !destructive {
			return &MigrationRequiredError{From: version, To: db.schema.Version}
		}
		db.logger.Warn("Schema version changed, recreating all tables", "from", version, "to", db.schema.Version)
		if err := db.dropAllTables(); err != nil {
			return err
		}
		if err := db.runHooks(ctx, func(h Hooks) hookFunc { return h.OnDestructiveMigration }); err != nil {
			return err
		}
		if err := db.createAllTables(); err != nil {
			return err
		}
		if err := db.validate(ctx); err != nil {
			return err
		}

	default:
		if err := db.checkIdentity(ctx); err != nil {
			return err
		}
	}

	return db.runHooks(ctx, func(h Hooks) hookFunc { return h.OnOpen })
}

func (db *Database) validate(ctx context.Context) error {
	if err := db.schema.validate(ctx, db.db); err != nil {
		db.logger.Error("Schema validation failed", "error", err)
		return err
	}
	return nil
}

// checkIdentity verifies that the stored identity hash belongs to this
// schema. Databases without an identity table are validated structurally and
// then stamped.
func (db *Database) checkIdentity(ctx context.Context) error {
	var tables int
	err := db.db.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", identityTable)
	if err != nil {
		return fmt.Errorf("failed to look up identity table: %w", err)
	}

	if tables == 0 {
		if err := db.validate(ctx); err != nil {
			return err
		}
		tx, err := db.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.ExecContext(ctx, identitySchema); err != nil {
			return fmt.Errorf("failed to create identity table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, writeIdentitySql, identityRowID, db.schema.IdentityHash); err != nil {
			return fmt.Errorf("failed to write identity: %w", err)
		}
		return tx.Commit()
	}

	var found sql.NullString
	err = db.db.GetContext(ctx, &found, readIdentitySql, identityRowID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read identity: %w", err)
	}
	if found.String != db.schema.IdentityHash {
		return &IdentityMismatchError{Expected: db.schema.IdentityHash, Found: found.String}
	}
	return db.validate(ctx)
}

type hookFunc func(ctx context.Context, db *sqlx.DB) error

func (db *Database) runHooks(ctx context.Context, pick func(Hooks) hookFunc) error {
	for _, h := range db.hooks {
		fn := pick(h)
		if fn == nil {
			continue
		}
		if err := fn(ctx, db.db); err != nil {
			return fmt.Errorf("database hook failed: %w", err)
		}
	}
	return nil
}

// Close releases cached statements and closes the connection pool.
func (db *Database) Close() error {
	db.stmts.close()
	return db.db.Close()
}

func (db *Database) GetDB() *sqlx.DB {
	return db.db
}

func (db *Database) Tracker() *events.Tracker {
	return db.tracker
}

func (db *Database) Schema() *Schema {
	return db.schema
}

// Tx is a write transaction. Statements obtained through Stmt come from the
// shared prepared statement cache.
type Tx struct {
	*sqlx.Tx
	ctx   context.Context
	stmts *statementCache
}

// Stmt returns the cached prepared statement for query, bound to this
// transaction.
func (tx *Tx) Stmt(query string) (*sqlx.Stmt, error) {
	stmt, err := tx.stmts.prepare(tx.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return tx.StmtxContext(tx.ctx, stmt), nil
}

// TxFunc performs writes inside a transaction. It reports whether any row
// changed; only then are the transaction's tables invalidated.
type TxFunc func(tx *Tx) (bool, error)

// WithTransaction runs fn in its own transaction. On error or panic the
// transaction is rolled back and nothing is written. After a successful
// commit that changed rows, every table in tables is invalidated.
func (db *Database) WithTransaction(ctx context.Context, fn TxFunc, tables ...string) error {
	db.activeTx.Add(1)
	defer db.activeTx.Add(-1)

	sqlTx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	changed, err := fn(&Tx{Tx: sqlTx, ctx: ctx, stmts: db.stmts})
	if err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}

	if changed {
		db.tracker.Notify(tables...)
	}
	return nil
}

// ClearAllTables deletes every row of every schema table in one transaction,
// then checkpoints the WAL and, if no other write is in flight, reclaims
// free pages.
func (db *Database) ClearAllTables(ctx context.Context) error {
	names := db.schema.TableNames()
	err := db.WithTransaction(ctx, func(tx *Tx) (bool, error) {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM `%s`", name)); err != nil {
				return false, fmt.Errorf("failed to clear %s: %w", name, err)
			}
		}
		return true, nil
	}, names...)
	if err != nil {
		return err
	}

	rows, err := db.db.QueryContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	if err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	rows.Close()

	if db.activeTx.Load() == 0 {
		if _, err := db.db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("failed to vacuum: %w", err)
		}
	}
	db.logger.Info("Cleared all tables", "tables", names)
	return nil
}

// Backup writes a consistent, compacted copy of the database to destPath
// using VACUUM INTO. destPath must not already exist.
func (db *Database) Backup(ctx context.Context, destPath string) error {
	if destPath == "" || strings.ContainsAny(destPath, "';") {
		return fmt.Errorf("invalid backup path")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	_, err := db.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", filepath.Clean(destPath)))
	if err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	db.logger.Info("Database backed up", "dest", destPath)
	return nil
}
