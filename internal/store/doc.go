// Package store runs quarry operations on SQL databases through
// database/sql.
//
// Three drivers are linked in:
//   - github.com/mattn/go-sqlite3 ("sqlite3"), the default SQLite driver
//   - modernc.org/sqlite ("sqlite"), a pure-Go SQLite for cgo-free builds
//   - github.com/jackc/pgx/v5/stdlib ("pgx") for Postgres
//
// # Connections
//
// Open returns a DB. Each call to DB.Connect pins one connection and wraps
// it in an Executor; an Executor must not be shared between goroutines.
// SQLite databases use a single connection, so a second Connect waits
// until the first executor is closed.
//
// # Revisions
//
// A revision is a database transaction on the executor's connection. One
// transaction may be open per executor (NESTED_REVISION otherwise); there
// are no implicit savepoints.
//
// # Schema checks
//
// Before each statement the executor reads the table's current columns
// (pragma_table_info on SQLite, information_schema on Postgres) and fails
// with SCHEMA_MISMATCH when the operation references a missing one.
//
// # Determinism
//
// Every select is ordered by the requested columns and then by the primary
// key, with byte-wise collation on text columns, so results are identical
// across drivers and runs.
package store
