package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
)

// Executor runs compiled programs on one pinned connection.
//
// Executor implements executor.DatabaseExecutor. It is not safe for
// concurrent use; call DB.Connect once per goroutine.
type Executor struct {
	db       *DB
	conn     *Conn
	compiler *querysql.Compiler
	logger   *slog.Logger
	slot     executor.Slot
	current  *Transaction
	ownsDB   bool
}

var _ executor.DatabaseExecutor = (*Executor)(nil)

// Backend returns the backend identifier.
func (e *Executor) Backend() string {
	return e.db.backend
}

// Connection returns the pinned connection.
func (e *Executor) Connection() executor.Connection {
	return e.conn
}

// Compile compiles a bound operation to a *querysql.Program.
func (e *Executor) Compile(op queryir.Operation) (executor.Executable, error) {
	return e.compiler.Compile(op)
}

// OpenRevision begins a transaction on the executor's connection.
func (e *Executor) OpenRevision(ctx context.Context) (executor.Revision, error) {
	g, err := executor.NewGuard(&e.slot)
	if err != nil {
		return nil, err
	}
	tx, err := e.conn.conn.BeginTx(ctx, nil)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	e.current = &Transaction{Guard: g, tx: tx}
	e.logger.Debug("transaction started", "backend", e.Backend(), "revision", g.ID())
	return e.current, nil
}

// Close rolls back an open transaction and releases the connection. An
// executor from OpenExecutor also closes its database.
func (e *Executor) Close() error {
	if e.current != nil {
		_ = e.current.Rollback()
		e.current = nil
	}
	err := e.conn.Close()
	if e.ownsDB {
		if cerr := e.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// EnsureTable creates the model's table if it does not exist.
func (e *Executor) EnsureTable(ctx context.Context, m *model.Schema) error {
	ddl := e.compiler.CreateTable(m)
	if _, err := e.conn.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", m.Name(), err)
	}
	return nil
}

// Run executes a program inside rev.
func (e *Executor) Run(ctx context.Context, exe executor.Executable, rev executor.Revision) (*executor.Result, error) {
	prog, tx, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}

	switch prog.Kind {
	case queryir.KindSelect:
		rows, err := tx.tx.QueryContext(ctx, prog.Statements[0].SQL, prog.Statements[0].Args...)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", prog.Model.Name(), err)
		}
		cur := newCursor(rows, prog.Columns)
		defer cur.Close()

		res := &executor.Result{}
		for cur.Next() {
			res.Rows = append(res.Rows, cur.Row())
		}
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("iterate %s: %w", prog.Model.Name(), err)
		}
		return res, nil
	case queryir.KindInsert:
		return e.insert(ctx, tx, prog)
	default:
		st := prog.Statements[0]
		r, err := tx.tx.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", prog.Kind, prog.Model.Name(), err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		return &executor.Result{Affected: n}, nil
	}
}

func (e *Executor) insert(ctx context.Context, tx *Transaction, prog *querysql.Program) (*executor.Result, error) {
	res := &executor.Result{}
	pk, hasPK := prog.Model.PrimaryKey()

	for i, st := range prog.Statements {
		key := prog.Keys[i]
		switch {
		case key == nil && prog.Returning && hasPK:
			if err := tx.tx.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&key); err != nil {
				return nil, fmt.Errorf("insert %s: %w", prog.Model.Name(), err)
			}
		default:
			r, err := tx.tx.ExecContext(ctx, st.SQL, st.Args...)
			if err != nil {
				return nil, fmt.Errorf("insert %s: %w", prog.Model.Name(), err)
			}
			if key == nil && hasPK && pk.Type == model.TypeInt {
				id, err := r.LastInsertId()
				if err != nil {
					return nil, fmt.Errorf("insert %s: last insert id: %w", prog.Model.Name(), err)
				}
				key = id
			}
		}
		if hasPK && key != nil {
			k, err := pk.Coerce(key)
			if err != nil {
				return nil, err
			}
			key = k
		}
		res.Keys = append(res.Keys, key)
		res.Affected++
	}
	return res, nil
}

// Stream executes a select inside rev and returns a cursor over its rows.
func (e *Executor) Stream(ctx context.Context, exe executor.Executable, rev executor.Revision) (executor.Cursor, error) {
	prog, tx, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}
	if prog.Kind != queryir.KindSelect {
		return nil, errs.InvalidArgument("cannot stream %s", prog.Kind)
	}
	rows, err := tx.tx.QueryContext(ctx, prog.Statements[0].SQL, prog.Statements[0].Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", prog.Model.Name(), err)
	}
	return newCursor(rows, prog.Columns), nil
}

// prepare checks that exe and rev belong to this executor and that the
// table has every referenced column.
func (e *Executor) prepare(ctx context.Context, exe executor.Executable, rev executor.Revision) (*querysql.Program, *Transaction, error) {
	prog, ok := exe.(*querysql.Program)
	if !ok {
		return nil, nil, errs.InvalidArgument("%s executor cannot run %T", e.Backend(), exe)
	}
	tx, ok := rev.(*Transaction)
	if !ok || tx != e.current || tx.Closed() {
		return nil, nil, errs.InvalidArgument("revision does not belong to this %s executor or is closed", e.Backend())
	}
	if err := e.checkColumns(ctx, tx, prog); err != nil {
		return nil, nil, err
	}
	return prog, tx, nil
}

// checkColumns compares the program's references with the live table.
func (e *Executor) checkColumns(ctx context.Context, tx *Transaction, prog *querysql.Program) error {
	rows, err := tx.tx.QueryContext(ctx, e.compiler.Dialect.ColumnsQuery, prog.Model.Name())
	if err != nil {
		return fmt.Errorf("read columns of %s: %w", prog.Model.Name(), err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column name: %w", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate columns: %w", err)
	}

	if len(have) == 0 {
		return errs.SchemaMismatch(prog.Model.Name(), "", "table does not exist")
	}
	for _, col := range prog.References {
		if !have[col] {
			return errs.SchemaMismatch(prog.Model.Name(), col, "column not in table")
		}
	}
	return nil
}

// Transaction is the revision of a SQL executor.
type Transaction struct {
	*executor.Guard
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	if t.Closed() {
		return sql.ErrTxDone
	}
	defer t.Close()
	return t.tx.Commit()
}

// Rollback aborts the transaction. It is a no-op once committed.
func (t *Transaction) Rollback() error {
	if !t.Close() {
		return nil
	}
	return t.tx.Rollback()
}

// Cursor iterates over the rows of a select.
type Cursor struct {
	rows    *sql.Rows
	columns []string
	row     model.Row
	err     error
	closed  bool
}

func newCursor(rows *sql.Rows, columns []string) *Cursor {
	return &Cursor{rows: rows, columns: columns}
}

// Next scans the next row.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil || !c.rows.Next() {
		return false
	}
	vals := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		return false
	}
	row := make(model.Row, len(c.columns))
	for i, col := range c.columns {
		if b, ok := vals[i].([]byte); ok {
			vals[i] = string(b)
		}
		row[col] = vals[i]
	}
	c.row = row
	return true
}

// Row returns the current row.
func (c *Cursor) Row() model.Row { return c.row }

// Err returns the scan or iteration error.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close closes the underlying rows.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
