// Package task runs compiled operations on executors.
//
// A task wraps exactly one execution. SimpleTask blocks until the complete
// result is available. StreamTask yields records lazily and holds its
// cursor, and its revision when it opened one itself, until iteration ends,
// fails or is abandoned.
//
// Roles:
//
//	SelectTask   a SimpleTask that reads records
//	WriteTask    a SimpleTask with side effects
//	StreamTask   a streaming select
//
// Tasks run inside the revision given with InRevision. Without one they
// open their own revision and commit it when they succeed.
package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

// Task is the common surface of all tasks.
type Task interface {
	// Operation returns the bound operation the task runs.
	Operation() queryir.Operation

	// Reads reports whether the task produces records.
	Reads() bool

	// Writes reports whether the task has side effects.
	Writes() bool
}

// Option configures a task.
type Option func(*config)

type config struct {
	rev      executor.Revision
	logger   *slog.Logger
	observer executor.Observer
}

// InRevision runs the task inside rev instead of an automatic revision.
func InRevision(rev executor.Revision) Option {
	return func(c *config) { c.rev = rev }
}

// WithLogger sets the task logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver reports task and revision events to o.
func WithObserver(o executor.Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default(), observer: executor.NopObserver{}}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// base holds what every task needs.
type base struct {
	ex  executor.Executor
	op  queryir.Operation
	exe executor.Executable
	cfg config
}

func (b *base) Operation() queryir.Operation { return b.op }
func (b *base) Reads() bool                  { return b.op.Kind() == queryir.KindSelect }
func (b *base) Writes() bool                 { return b.op.Kind() != queryir.KindSelect }

// run is the state of one execution: its revision and guard.
type run struct {
	rev     executor.Revision
	auto    bool
	release func()
	start   time.Time
}

// begin resolves the revision and takes its guard.
func (b *base) begin(ctx context.Context) (*run, error) {
	r := &run{rev: b.cfg.rev, start: time.Now()}
	if r.rev == nil {
		rev, err := b.ex.OpenRevision(ctx)
		if err != nil {
			return nil, err
		}
		r.rev, r.auto = rev, true
		b.cfg.logger.Debug("revision opened", "backend", b.ex.Backend(), "revision", rev.ID())
	}
	release, err := r.rev.Acquire()
	if err != nil {
		if r.auto {
			_ = r.rev.Rollback()
		}
		return nil, err
	}
	r.release = release
	return r, nil
}

// end releases the guard and closes an automatic revision: commit when err
// is nil, rollback otherwise. It returns the task's final error.
func (b *base) end(r *run, rows int, err error) error {
	r.release()
	if r.auto {
		if err == nil {
			if cerr := r.rev.Commit(); cerr != nil {
				err = cerr
			} else {
				b.cfg.logger.Debug("revision committed", "backend", b.ex.Backend(), "revision", r.rev.ID())
				b.cfg.observer.RevisionDone(b.ex.Backend(), true)
			}
		}
		if err != nil {
			_ = r.rev.Rollback() // No-op if committed
			b.cfg.logger.Debug("revision rolled back", "backend", b.ex.Backend(), "revision", r.rev.ID())
			b.cfg.observer.RevisionDone(b.ex.Backend(), false)
		}
	}
	if err != nil {
		b.cfg.logger.Error("task failed",
			"backend", b.ex.Backend(),
			"operation", b.op.Kind(),
			"model", b.op.Schema().Name(),
			"error", err)
	}
	b.cfg.observer.TaskDone(b.ex.Backend(), b.op.Kind(), rows, err, time.Since(r.start))
	return err
}

// columns returns the projected columns of a select.
func columns(op queryir.Operation) []string {
	sel, ok := op.(queryir.Select)
	if !ok {
		return nil
	}
	var cols []string
	for _, p := range sel.Projection() {
		cols = append(cols, p.Column())
	}
	return cols
}

// toRecord converts one raw row. Only MISSING_VALUE is a row-level error;
// any other conversion failure is returned as fatal.
func toRecord(m *model.Schema, row model.Row, cols []string) (rec *model.Record, rowErr, fatal error) {
	rec, err := m.FromColumns(row, cols)
	if err == nil {
		return rec, nil, nil
	}
	if errs.IsMissingValue(err) {
		return rec, err, nil
	}
	return nil, nil, err
}
