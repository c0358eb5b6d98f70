// Package backends registers every storage backend quarry ships with.
//
//	sqlite       go-sqlite3 (cgo)            params: dsn or path
//	sqlite-pure  modernc.org/sqlite          params: dsn or path
//	postgres     pgx through database/sql    params: dsn
//	json         JSON documents              params: dir
//	csv          CSV documents               params: dir
//	bolt         bbolt key/value file        params: path
//
// Registration is explicit: call Register or NewRegistry.
package backends

import (
	"context"
	"log/slog"

	"github.com/roach88/quarry/internal/boltstore"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/filestore"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/store"
)

// Backend identifiers.
const (
	SQLite     = "sqlite"
	SQLitePure = "sqlite-pure"
	Postgres   = "postgres"
	JSON       = "json"
	CSV        = "csv"
	Bolt       = "bolt"
)

// Option configures the registered factories.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger passes a logger to every executor the factories create.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Register adds all backends to reg.
func Register(reg *executor.Registry, opts ...Option) error {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	factories := []struct {
		name string
		f    executor.Factory
	}{
		{SQLite, o.sql(SQLite, store.DriverSQLite)},
		{SQLitePure, o.sql(SQLitePure, store.DriverSQLitePure)},
		{Postgres, o.sql(Postgres, store.DriverPostgres)},
		{JSON, o.files(JSON, filestore.JSON)},
		{CSV, o.files(CSV, filestore.CSV)},
		{Bolt, o.bolt},
	}
	for _, f := range factories {
		if err := reg.Register(f.name, f.f); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding all backends.
func NewRegistry(opts ...Option) *executor.Registry {
	reg := executor.NewRegistry()
	if err := Register(reg, opts...); err != nil {
		// A fresh registry has no identifiers to collide with.
		panic(err)
	}
	return reg
}

func (o options) sql(name, driver string) executor.Factory {
	return func(ctx context.Context, p executor.Params) (executor.Executor, error) {
		key := executor.ParamDSN
		if driver != store.DriverPostgres && p.Get(key) == "" {
			key = executor.ParamPath
		}
		dsn, err := p.Require(name, key)
		if err != nil {
			return nil, err
		}
		return store.OpenExecutor(ctx, name, driver, dsn, store.WithLogger(o.logger))
	}
}

func (o options) files(name string, format filestore.Format) executor.Factory {
	return func(_ context.Context, p executor.Params) (executor.Executor, error) {
		dir, err := p.Require(name, executor.ParamDir)
		if err != nil {
			return nil, err
		}
		return filestore.Open(dir, format, filestore.WithLogger(o.logger), filestore.WithBackend(name))
	}
}

func (o options) bolt(_ context.Context, p executor.Params) (executor.Executor, error) {
	path, err := p.Require(Bolt, executor.ParamPath)
	if err != nil {
		return nil, err
	}
	return boltstore.Open(path, boltstore.WithLogger(o.logger))
}

// Dialect returns the SQL dialect a backend compiles to. Document and
// key/value backends have none.
func Dialect(backend string) (querysql.Dialect, bool) {
	switch backend {
	case SQLite, SQLitePure:
		return querysql.SQLite, true
	case Postgres:
		return querysql.Postgres, true
	}
	return querysql.Dialect{}, false
}

// TableCreator is implemented by executors that create storage for a model
// ahead of use.
type TableCreator interface {
	EnsureTable(ctx context.Context, m *model.Schema) error
}

// Prepare creates the storage of every model on executors that need it.
// Document and key/value backends create storage on first write.
func Prepare(ctx context.Context, ex executor.Executor, models ...*model.Schema) error {
	tc, ok := ex.(TableCreator)
	if !ok {
		return nil
	}
	for _, m := range models {
		if err := tc.EnsureTable(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
