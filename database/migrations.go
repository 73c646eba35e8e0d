package database

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// Migrations applied to the schema are recorded here. The dialect is always
// sqlite3; sql-migrate does not care which driver registered the connection.
const (
	migrationTable   = "wifigrid_migrations"
	migrationDialect = "sqlite3"
)

func (db *Database) migrationSet() migrate.MigrationSet {
	return migrate.MigrationSet{TableName: migrationTable, IgnoreUnknown: true}
}

// migrationSource expresses the whole schema as a single migration. Up
// creates every table and stamps the identity and version; Down drops them.
func (s *Schema) migrationSource() *migrate.MemoryMigrationSource {
	up := make([]string, 0, len(s.Tables)+3)
	down := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		up = append(up, table.CreateSql)
		down = append(down, dropTableSql(table.Name))
	}
	up = append(up,
		identitySchema,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (id, identity_hash) VALUES (%d, '%s')", identityTable, identityRowID, s.IdentityHash),
		fmt.Sprintf("PRAGMA user_version = %d", s.Version),
	)

	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id:   fmt.Sprintf("%d_%s", s.Version, s.VersionToken),
				Up:   up,
				Down: down,
			},
		},
	}
}

func dropTableSql(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)
}

// createAllTables applies the schema migration. Tables that already exist are
// left alone.
func (db *Database) createAllTables() error {
	n, err := db.migrationSet().Exec(db.db.DB, migrationDialect, db.schema.migrationSource(), migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	db.logger.Info("Created tables", "migrations", n, "version", db.schema.Version)
	return nil
}

// resetMigrationLedger forgets every recorded migration. The schema
// migration is idempotent, so applying it again over existing tables is safe.
func (db *Database) resetMigrationLedger() error {
	if _, err := db.db.Exec(dropTableSql(migrationTable)); err != nil {
		return fmt.Errorf("failed to reset migrations table: %w", err)
	}
	return nil
}

// dropAllTables rolls the schema migration back and then drops the tables
// directly, covering databases whose tables were not created through the
// migrations ledger.
func (db *Database) dropAllTables() error {
	if _, err := db.migrationSet().Exec(db.db.DB, migrationDialect, db.schema.migrationSource(), migrate.Down); err != nil {
		return fmt.Errorf("failed to roll back schema: %w", err)
	}

	tx, err := db.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range db.schema.TableNames() {
		if _, err := tx.Exec(dropTableSql(name)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", name, err)
		}
	}
	// Forget the ledger entirely so the next Up re-applies the schema even if
	// an older revision was recorded.
	if _, err := tx.Exec(dropTableSql(migrationTable)); err != nil {
		return fmt.Errorf("failed to drop migrations table: %w", err)
	}
	return tx.Commit()
}
