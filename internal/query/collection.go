// Package query is the user-facing entry point: a Collection binds a model
// to an executor, and its Select, Insert, Update and Delete methods start
// immutable query builders.
//
// Every builder method returns a new query; the receiver is never changed.
// Builder misuse (negative limits, bad directions) is recorded in the query
// and reported by Err and by Execute, before any I/O happens.
//
//	fruits := query.NewCollection(fruit, ex)
//	red, err := fruits.Select().
//		Where(expr.Eq(fruit.Field("color"), "red")).
//		OrderBy(expr.Asc(fruit.Field("name"))).
//		Limit(10).
//		Execute(ctx)
package query

import (
	"context"
	"log/slog"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/task"
)

// Collection binds a model to an executor.
//
// A Collection is cheap to copy with In; it holds no connection state of
// its own. It is as safe for concurrent use as its executor.
type Collection struct {
	schema   *model.Schema
	exec     executor.Executor
	rev      executor.Revision
	logger   *slog.Logger
	observer executor.Observer
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger used by the collection's tasks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver reports task and revision events to o.
func WithObserver(o executor.Observer) Option {
	return func(c *Collection) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCollection binds schema to exec.
func NewCollection(schema *model.Schema, exec executor.Executor, opts ...Option) *Collection {
	c := &Collection{
		schema:   schema,
		exec:     exec,
		logger:   slog.Default(),
		observer: executor.NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the collection's model.
func (c *Collection) Model() *model.Schema { return c.schema }

// Executor returns the collection's executor.
func (c *Collection) Executor() executor.Executor { return c.exec }

// Revision returns the revision queries run in, or nil for automatic
// revisions.
func (c *Collection) Revision() executor.Revision { return c.rev }

// In returns a copy of the collection whose queries run inside rev.
func (c *Collection) In(rev executor.Revision) *Collection {
	cp := *c
	cp.rev = rev
	return &cp
}

// Transaction runs fn with a collection bound to a fresh revision. The
// revision is committed when fn returns nil and rolled back otherwise.
func (c *Collection) Transaction(ctx context.Context, fn func(tx *Collection) error) error {
	opened := false
	err := executor.WithRevision(ctx, c.exec, func(rev executor.Revision) error {
		opened = true
		c.logger.Debug("transaction opened", "backend", c.exec.Backend(), "revision", rev.ID())
		return fn(c.In(rev))
	})
	if opened {
		c.observer.RevisionDone(c.exec.Backend(), err == nil)
	}
	return err
}

// Select starts a select of the given properties, or of every property.
func (c *Collection) Select(fields ...model.Property) SelectQuery {
	q := SelectQuery{coll: c, limit: queryir.NoLimit}
	if len(fields) > 0 {
		q.fields = append([]model.Property(nil), fields...)
	}
	return q
}

// Insert starts an insert of the given items.
func (c *Collection) Insert(items ...model.Values) InsertQuery {
	return InsertQuery{coll: c}.Values(items...)
}

// InsertRecords starts an insert of records of the collection's model.
func (c *Collection) InsertRecords(recs ...*model.Record) InsertQuery {
	q := InsertQuery{coll: c}
	for _, r := range recs {
		if r == nil || r.Schema() != c.schema {
			q.err = errs.InvalidArgument("record is not a %s", c.schema.Name())
			return q
		}
		q.items = append(q.items, r.Values())
	}
	return q
}

// Update starts an update of the records matching every where expression.
func (c *Collection) Update(where ...expr.Expression) UpdateQuery {
	return UpdateQuery{coll: c}.Where(where...)
}

// Delete starts a delete of the records matching every where expression.
// Without expressions every record is deleted.
func (c *Collection) Delete(where ...expr.Expression) DeleteQuery {
	return DeleteQuery{coll: c}.Where(where...)
}

// Get returns the record with the given primary key, or nil when there is
// none.
func (c *Collection) Get(ctx context.Context, key any) (*model.Record, error) {
	pk, ok := c.schema.PrimaryKey()
	if !ok {
		return nil, errs.InvalidArgument("model %s has no primary key", c.schema.Name())
	}
	return c.Select().Where(expr.Eq(pk, key)).First(ctx)
}

// Follow resolves a reference held by rec to a record of this collection.
// Embedded references are decoded without I/O; others are loaded with Get.
func (c *Collection) Follow(ctx context.Context, rec *model.Record, name string) (*model.Record, error) {
	p, ok := rec.Schema().Lookup(name)
	if !ok {
		return nil, errs.UnboundProperty(rec.Schema().Name(), name)
	}
	if p.Type != model.TypeRef || p.Ref != c.schema.Name() {
		return nil, errs.InvalidArgument("%s is not a reference to %s", p, c.schema.Name())
	}
	v := rec.Value(name)
	if v == nil {
		return nil, nil
	}
	if p.Embed {
		row, _ := v.(map[string]any)
		return c.schema.FromRow(model.Row(row))
	}
	return c.Get(ctx, v)
}

func (c *Collection) taskOptions() []task.Option {
	opts := []task.Option{task.WithLogger(c.logger), task.WithObserver(c.observer)}
	if c.rev != nil {
		opts = append(opts, task.InRevision(c.rev))
	}
	return opts
}

// prepare binds op and compiles it on the collection's executor.
func (c *Collection) prepare(op queryir.Operation) (queryir.Operation, executor.Executable, error) {
	bound, err := queryir.Bind(op, c.exec.Backend())
	if err != nil {
		return nil, nil, err
	}
	exe, err := c.exec.Compile(bound)
	if err != nil {
		return nil, nil, err
	}
	return bound, exe, nil
}

func (c *Collection) simple() (executor.SimpleExecutor, error) {
	s, ok := c.exec.(executor.SimpleExecutor)
	if !ok {
		return nil, errs.InvalidArgument("backend %s cannot run queries", c.exec.Backend())
	}
	return s, nil
}

func (c *Collection) write(ctx context.Context, op queryir.Operation) (task.WriteResult, error) {
	bound, exe, err := c.prepare(op)
	if err != nil {
		return task.WriteResult{}, err
	}
	ex, err := c.simple()
	if err != nil {
		return task.WriteResult{}, err
	}
	wt, err := task.NewWrite(ex, bound, exe, c.taskOptions()...)
	if err != nil {
		return task.WriteResult{}, err
	}
	return wt.Apply(ctx)
}
