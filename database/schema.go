package database

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Databases written by the Android client keep their identity hash in this
// table, so the same name is used here.
const (
	identityTable = "room_master_table"
	identityRowID = 42
)

const identitySchema = `
CREATE TABLE IF NOT EXISTS room_master_table (id INTEGER PRIMARY KEY, identity_hash TEXT)
`

const writeIdentitySql = `
INSERT OR REPLACE INTO room_master_table (id, identity_hash) VALUES (?, ?)
`

const readIdentitySql = `
SELECT identity_hash FROM room_master_table WHERE id = ?
`

// Column describes one expected column of a table.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	// PrimaryKeyPosition is the 1-based position of the column in the primary
	// key, or 0 if the column is not part of it.
	PrimaryKeyPosition int
}

// Table is a table owned by the schema.
type Table struct {
	Name      string
	CreateSql string
	Columns   []Column
}

// Info returns the structure this table is expected to have on disk.
func (t Table) Info() TableInfo {
	info := TableInfo{Name: t.Name, Columns: make(map[string]Column, len(t.Columns))}
	for _, c := range t.Columns {
		info.Columns[c.Name] = c
	}
	return info
}

// Schema is the full set of tables managed by a Database.
type Schema struct {
	Version int
	// IdentityHash identifies the table definitions. Two schemas with the same
	// version must have the same identity hash.
	IdentityHash string
	// VersionToken names this revision of the schema in the migrations ledger.
	VersionToken string
	Tables       []Table
}

// TableNames returns the names of all tables in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// TableInfo is the structure of a table as relevant for validation.
type TableInfo struct {
	Name    string
	Columns map[string]Column
}

// String renders the columns in a stable order, suitable for diffs.
func (t TableInfo) String() string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "TableInfo{name='%s', columns={", t.Name)
	for i, name := range names {
		c := t.Columns[name]
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=Column{name='%s', type='%s', affinity='%s', notNull=%t, primaryKeyPosition=%d}",
			name, c.Name, c.Type, affinity(c.Type), c.NotNull, c.PrimaryKeyPosition)
	}
	b.WriteString("}}")
	return b.String()
}

// Fingerprint hashes the structural properties of the table: column names,
// type affinity, nullability and primary key position. Declared type spelling
// does not matter as long as the affinity is the same.
func (t TableInfo) Fingerprint() string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	h := md5.New()
	fmt.Fprintf(h, "%s|", t.Name)
	for _, name := range names {
		c := t.Columns[name]
		fmt.Fprintf(h, "%s:%s:%t:%d|", c.Name, affinity(c.Type), c.NotNull, c.PrimaryKeyPosition)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// affinity applies the sqlite column affinity rules to a declared type.
func affinity(declared string) string {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return "INTEGER"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "TEXT"
	case t == "", strings.Contains(t, "BLOB"):
		return "BLOB"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return "REAL"
	default:
		return "NUMERIC"
	}
}

// ReadTableInfo reads the on-disk structure of a table. A table that does not
// exist yields a TableInfo with no columns.
func ReadTableInfo(ctx context.Context, q sqlx.QueryerContext, table string) (TableInfo, error) {
	info := TableInfo{Name: table, Columns: make(map[string]Column)}

	rows, err := q.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(`%s`)", table))
	if err != nil {
		return info, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid      int
			column   Column
			notNull  int
			defValue sql.NullString
		)
		if err := rows.Scan(&cid, &column.Name, &column.Type, &notNull, &defValue, &column.PrimaryKeyPosition); err != nil {
			return info, fmt.Errorf("failed to scan table info for %s: %w", table, err)
		}
		column.NotNull = notNull != 0
		info.Columns[column.Name] = column
	}
	return info, rows.Err()
}

// validate compares every table on disk against the schema.
func (s *Schema) validate(ctx context.Context, q sqlx.QueryerContext) error {
	for _, table := range s.Tables {
		expected := table.Info()
		found, err := ReadTableInfo(ctx, q, table.Name)
		if err != nil {
			return err
		}
		if expected.Fingerprint() != found.Fingerprint() {
			return &ValidationError{Table: table.Name, Expected: expected, Found: found}
		}
	}
	return nil
}
