package database

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/jmoiron/sqlx"
)

// statementCache keeps prepared statements keyed by their SQL text. Evicted
// statements are closed. The cache should be sized to hold every statement
// the application prepares, since an eviction closes a statement that
// another goroutine may be about to use.
type statementCache struct {
	mutex sync.Mutex
	db    *sqlx.DB
	cache *lru.Cache
}

func newStatementCache(db *sqlx.DB, maxEntries int) *statementCache {
	cache := lru.New(maxEntries)
	cache.OnEvicted = func(key lru.Key, value interface{}) {
		value.(*sqlx.Stmt).Close()
	}
	return &statementCache{db: db, cache: cache}
}

func (c *statementCache) prepare(ctx context.Context, query string) (*sqlx.Stmt, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if stmt, ok := c.cache.Get(query); ok {
		return stmt.(*sqlx.Stmt), nil
	}
	stmt, err := c.db.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(query, stmt)
	return stmt, nil
}

func (c *statementCache) len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cache.Len()
}

func (c *statementCache) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache.Clear()
}
