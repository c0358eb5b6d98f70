// Package executor defines the capability surface every storage backend
// implements, and the helpers shared by all of them.
//
// CAPABILITIES:
//
//	Executor          Backend, Compile, OpenRevision, Close
//	SimpleExecutor    + Run: the full result set at once
//	StreamExecutor    + Stream: a Cursor over raw rows
//	DatabaseExecutor  + Connection: a database connection with transactions
//
// Flat-file backends implement SimpleExecutor and StreamExecutor. SQL
// backends implement DatabaseExecutor. Tasks (package task) pick the
// execution path from the capabilities an executor has.
//
// REVISIONS:
//
// A Revision is one unit of work: a SQL transaction, a flat-file write
// batch or a bbolt transaction. At most one Revision is open per executor
// (NESTED_REVISION otherwise) and at most one task runs against a Revision
// at a time (CONCURRENT_REVISION_USE otherwise). WithRevision commits on
// success and rolls back on error or panic.
package executor

import (
	"context"

	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

// Executable is a compiled operation. Its concrete type is private to the
// executor that produced it (*querysql.Program, *queryfile.Plan).
type Executable any

// Executor is the capability every backend has.
type Executor interface {
	// Backend returns the identifier the executor was registered under.
	Backend() string

	// Compile turns a bound operation into an Executable. It performs no I/O.
	Compile(op queryir.Operation) (Executable, error)

	// OpenRevision starts a unit of work.
	OpenRevision(ctx context.Context) (Revision, error)

	// Close releases the executor's resources.
	Close() error
}

// SimpleExecutor runs an executable to completion.
type SimpleExecutor interface {
	Executor

	// Run executes exe inside rev and returns the complete result.
	Run(ctx context.Context, exe Executable, rev Revision) (*Result, error)
}

// StreamExecutor can also produce results lazily.
type StreamExecutor interface {
	SimpleExecutor

	// Stream executes a select inside rev and returns a cursor over its
	// rows. The cursor must be closed.
	Stream(ctx context.Context, exe Executable, rev Revision) (Cursor, error)
}

// DatabaseExecutor is a StreamExecutor backed by a database connection.
type DatabaseExecutor interface {
	StreamExecutor

	// Connection returns the connection the executor runs on.
	Connection() Connection
}

// Connection is a live database connection.
type Connection interface {
	Ping(ctx context.Context) error
	Close() error
}

// Result is the outcome of Run.
type Result struct {
	// Rows holds the selected rows, keyed by storage name, in order.
	Rows []model.Row

	// Affected counts inserted, updated or deleted records.
	Affected int64

	// Keys holds the primary keys of inserted records, in item order.
	Keys []any
}

// Cursor iterates over raw rows.
//
// Cursors are not safe for concurrent use.
type Cursor interface {
	// Next advances to the next row. It returns false at the end of the
	// rows or on error.
	Next() bool

	// Row returns the current row.
	Row() model.Row

	// Err returns the error that ended iteration, if any.
	Err() error

	// Close releases the cursor. It is safe to call more than once.
	Close() error
}

// SliceCursor is a Cursor over rows already in memory.
type SliceCursor struct {
	rows []model.Row
	pos  int
}

// NewSliceCursor returns a cursor over rows.
func NewSliceCursor(rows []model.Row) *SliceCursor {
	return &SliceCursor{rows: rows, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Row() model.Row {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

func (c *SliceCursor) Err() error   { return nil }
func (c *SliceCursor) Close() error { c.pos = len(c.rows); return nil }
