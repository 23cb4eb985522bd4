// Package database opens the SQL connection pools, runs schema migrations
// and provides the transaction helper used by every store.
//
// PostgreSQL (lib/pq) is the production driver. SQLite (mattn/go-sqlite3)
// is supported for local development and for tests. Queries use $N
// placeholders, numbered in the order they appear in the statement, which
// both drivers accept.
package database
