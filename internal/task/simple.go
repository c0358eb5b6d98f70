package task

import (
	"context"
	"sync/atomic"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

// SimpleTask runs an executable to completion.
type SimpleTask struct {
	base
	simple executor.SimpleExecutor
	ran    atomic.Bool
}

// NewSimple creates a task that runs exe, compiled from op, on ex.
func NewSimple(ex executor.SimpleExecutor, op queryir.Operation, exe executor.Executable, opts ...Option) *SimpleTask {
	return &SimpleTask{
		base:   base{ex: ex, op: op, exe: exe, cfg: newConfig(opts)},
		simple: ex,
	}
}

// Run executes the task and returns the raw result. A task runs once.
func (t *SimpleTask) Run(ctx context.Context) (*executor.Result, error) {
	if !t.ran.CompareAndSwap(false, true) {
		return nil, errs.InvalidArgument("task for %s %s already ran", t.op.Kind(), t.op.Schema().Name())
	}
	r, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	res, err := t.simple.Run(ctx, t.exe, r.rev)
	rows := 0
	if res != nil {
		rows = len(res.Rows) + int(res.Affected)
	}
	if err = t.end(r, rows, err); err != nil {
		return nil, err
	}
	return res, nil
}

// SelectTask is a SimpleTask returning records.
type SelectTask struct {
	*SimpleTask
}

// NewSelect creates a select task. op must be a select.
func NewSelect(ex executor.SimpleExecutor, op queryir.Operation, exe executor.Executable, opts ...Option) (*SelectTask, error) {
	if op.Kind() != queryir.KindSelect {
		return nil, errs.InvalidArgument("select task cannot run %s", op.Kind())
	}
	return &SelectTask{SimpleTask: NewSimple(ex, op, exe, opts...)}, nil
}

// Records runs the task and converts every row. The first row error aborts
// the conversion and is returned.
func (t *SelectTask) Records(ctx context.Context) ([]*model.Record, error) {
	res, err := t.Run(ctx)
	if err != nil {
		return nil, err
	}
	cols := columns(t.op)
	out := make([]*model.Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		rec, rowErr, fatal := toRecord(t.op.Schema(), row, cols)
		if fatal != nil {
			return nil, fatal
		}
		if rowErr != nil {
			return nil, rowErr
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteResult is the outcome of an insert, update or delete.
type WriteResult struct {
	// Affected counts the records written.
	Affected int64

	// Keys holds the primary keys of inserted records, in item order.
	Keys []any
}

// WriteTask is a SimpleTask with side effects.
type WriteTask struct {
	*SimpleTask
}

// NewWrite creates a write task. op must be an insert, update or delete.
func NewWrite(ex executor.SimpleExecutor, op queryir.Operation, exe executor.Executable, opts ...Option) (*WriteTask, error) {
	if op.Kind() == queryir.KindSelect {
		return nil, errs.InvalidArgument("write task cannot run select")
	}
	return &WriteTask{SimpleTask: NewSimple(ex, op, exe, opts...)}, nil
}

// Apply runs the write.
func (t *WriteTask) Apply(ctx context.Context) (WriteResult, error) {
	res, err := t.Run(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Affected: res.Affected, Keys: res.Keys}, nil
}
