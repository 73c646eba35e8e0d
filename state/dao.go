package state

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tomyedwab/wifigrid/database"
)

// Dao provides typed access to the wifi test tables. Each write runs in its
// own transaction; reads run directly against the pool and stop when their
// context is cancelled.
type Dao struct {
	db *database.Database
}

func newDao(db *database.Database) *Dao {
	return &Dao{db: db}
}

// execCached runs a cached write statement in its own transaction and
// invalidates table if any row changed.
func (d *Dao) execCached(ctx context.Context, table, query string, args ...any) error {
	return d.db.WithTransaction(ctx, func(tx *database.Tx) (bool, error) {
		stmt, err := tx.Stmt(query)
		if err != nil {
			return false, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}, table)
}

// selectAll runs query and decodes every row with scan.
func selectAll[T any](ctx context.Context, db *sqlx.DB, scan func(*sqlx.Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := []T{}
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ret = append(ret, row)
	}
	return ret, rows.Err()
}

// nullableString converts an optional value to its column form.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
