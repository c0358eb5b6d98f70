package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/quarry/internal/querysql"
)

// Driver names registered by the imported database drivers.
const (
	DriverSQLite     = "sqlite3" // github.com/mattn/go-sqlite3
	DriverSQLitePure = "sqlite"  // modernc.org/sqlite
	DriverPostgres   = "pgx"     // github.com/jackc/pgx/v5/stdlib
)

// DB is an open SQL database. Executors are handed out with Connect, one
// per concurrent caller.
type DB struct {
	db      *sql.DB
	backend string
	driver  string
	dialect querysql.Dialect
	logger  *slog.Logger
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets the logger for the database and its executors.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.logger = l
		}
	}
}

// Open opens a database with one of the Driver* drivers. backend is the
// identifier reported by executors.
//
// SQLite databases are configured with:
//   - a single connection (SQLite has one writer; a second Connect waits
//     until the first executor is closed)
//   - WAL mode and a 5-second busy timeout
//   - foreign key enforcement
//   - case-sensitive LIKE, matching the other backends
func Open(ctx context.Context, backend, driver, dsn string, opts ...Option) (*DB, error) {
	dialect := querysql.SQLite
	if driver == DriverPostgres {
		dialect = querysql.Postgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect.Name == querysql.SQLite.Name {
		db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
		db.SetMaxIdleConns(1) // Keep one connection ready
	}

	d := &DB{
		db:      db,
		backend: backend,
		driver:  driver,
		dialect: dialect,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger.Debug("database opened", "backend", backend, "driver", driver)
	return d, nil
}

// Close closes the database. Executors must be closed first.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Dialect returns the SQL dialect of the database.
func (d *DB) Dialect() querysql.Dialect {
	return d.dialect
}

// Connect pins a connection and returns an executor running on it.
func (d *DB) Connect(ctx context.Context) (*Executor, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := d.applyPragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return &Executor{
		db:       d,
		conn:     &Conn{conn: conn},
		compiler: querysql.NewCompiler(d.dialect),
		logger:   d.logger,
	}, nil
}

// OpenExecutor opens a database and connects one executor that owns it.
func OpenExecutor(ctx context.Context, backend, driver, dsn string, opts ...Option) (*Executor, error) {
	d, err := Open(ctx, backend, driver, dsn, opts...)
	if err != nil {
		return nil, err
	}
	ex, err := d.Connect(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	ex.ownsDB = true
	return ex, nil
}

// applyPragmas sets required SQLite configuration on one connection.
func (d *DB) applyPragmas(ctx context.Context, conn *sql.Conn) error {
	if d.dialect.Name != querysql.SQLite.Name {
		return nil
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Conn is the connection an Executor runs on.
type Conn struct {
	conn *sql.Conn
}

// Ping verifies the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Raw returns the underlying connection. Use with caution: statements run
// on it bypass revisions.
func (c *Conn) Raw() *sql.Conn {
	return c.conn
}
