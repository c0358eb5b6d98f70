package task

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

type streamState int

const (
	streamPending streamState = iota
	streamOpen
	streamDone
)

// StreamTask yields the records of a select one at a time.
//
// Nothing happens until the first call to Next. The sequence is finite and
// cannot be restarted. Its cursor and automatic revision are released when
// iteration ends, fails, or the task is closed, whichever comes first.
//
// A row whose required value is missing is still yielded, together with a
// MISSING_VALUE error from Record; iteration continues past it.
//
// StreamTask is not safe for concurrent use.
type StreamTask struct {
	base
	stream executor.StreamExecutor
	ctx    context.Context
	cols   []string

	state  streamState
	run    *run
	cursor executor.Cursor
	rows   int

	rec    *model.Record
	rowErr error
	err    error
}

// NewStream creates a streaming task for a select.
func NewStream(ctx context.Context, ex executor.StreamExecutor, op queryir.Operation, exe executor.Executable, opts ...Option) (*StreamTask, error) {
	if op.Kind() != queryir.KindSelect {
		return nil, errs.InvalidArgument("stream task cannot run %s", op.Kind())
	}
	return &StreamTask{
		base:   base{ex: ex, op: op, exe: exe, cfg: newConfig(opts)},
		stream: ex,
		ctx:    ctx,
		cols:   columns(op),
	}, nil
}

// Next advances to the next record.
func (t *StreamTask) Next() bool {
	switch t.state {
	case streamDone:
		return false
	case streamPending:
		if !t.open() {
			return false
		}
	}

	if err := t.ctx.Err(); err != nil {
		t.finish(err)
		return false
	}
	if !t.cursor.Next() {
		t.finish(t.cursor.Err())
		return false
	}

	rec, rowErr, fatal := toRecord(t.op.Schema(), t.cursor.Row(), t.cols)
	if fatal != nil {
		t.finish(fatal)
		return false
	}
	t.rec, t.rowErr = rec, rowErr
	t.rows++
	return true
}

// Record returns the current record and its row-level error, if any.
func (t *StreamTask) Record() (*model.Record, error) {
	return t.rec, t.rowErr
}

// Err returns the error that ended iteration.
func (t *StreamTask) Err() error {
	return t.err
}

// Close abandons iteration and releases the task's resources. Closing a
// finished task is a no-op.
func (t *StreamTask) Close() error {
	switch t.state {
	case streamPending:
		t.state = streamDone
		return nil
	case streamOpen:
		t.finishWith(nil, false)
	}
	return nil
}

// All returns the remaining records as a sequence. Each pair carries a
// record and its row-level error; a fatal error is yielded last with a nil
// record. Breaking out of the loop closes the task.
func (t *StreamTask) All() iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		defer t.Close()
		for t.Next() {
			if !yield(t.Record()) {
				return
			}
		}
		if err := t.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (t *StreamTask) open() bool {
	r, err := t.begin(t.ctx)
	if err != nil {
		t.state = streamDone
		t.err = err
		return false
	}
	t.run = r
	t.state = streamOpen

	cursor, err := t.stream.Stream(t.ctx, t.exe, r.rev)
	if err != nil {
		t.finish(err)
		return false
	}
	t.cursor = cursor
	return true
}

// finish ends an open stream after exhaustion or a fatal error.
func (t *StreamTask) finish(err error) {
	t.finishWith(err, true)
}

// finishWith closes the cursor and ends the run. complete is false when the
// caller abandoned iteration; the automatic revision is then rolled back.
func (t *StreamTask) finishWith(err error, complete bool) {
	if t.state != streamOpen {
		return
	}
	t.state = streamDone
	t.rec, t.rowErr = nil, nil
	if t.cursor != nil {
		if cerr := t.cursor.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if !complete && err == nil && t.run.auto {
		t.run.release()
		_ = t.run.rev.Rollback()
		t.cfg.logger.Debug("stream abandoned", "backend", t.ex.Backend(), "revision", t.run.rev.ID())
		t.cfg.observer.RevisionDone(t.ex.Backend(), false)
		t.cfg.observer.TaskDone(t.ex.Backend(), t.op.Kind(), t.rows, nil, time.Since(t.run.start))
		return
	}
	t.err = t.end(t.run, t.rows, err)
}
