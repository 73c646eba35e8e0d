package database

// Package database provides a connection to the SQLite database and manages
// the schema lifecycle: creating tables on first open, validating them against
// the expected structure, and recreating them when the schema version
// changes. It also wraps writes in transactions that invalidate the tables
// they touch, and serves live queries that re-run on invalidation. This
// package is a generic utility; application tables are described by a Schema
// injected at startup.
