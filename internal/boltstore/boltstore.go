// Package boltstore implements an executor over a bbolt database.
//
// Each model is stored in a bucket named after it. Records are JSON
// objects keyed by their primary key: int keys are packed big-endian with
// the sign bit flipped so bucket order is numeric order, string and uuid
// keys are stored as bytes. Models without a primary key use the bucket
// sequence as a hidden key. Int keys without a value take the next bucket
// sequence; an explicit key above the sequence moves it forward.
//
// A revision is a writable bbolt transaction. Selects without an ordering
// stream from a bucket cursor.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryfile"
	"github.com/roach88/quarry/internal/queryir"
)

// Backend is the default backend identifier.
const Backend = "bolt"

// Executor runs plans against a bbolt database.
//
// Executor implements executor.StreamExecutor. It is not safe for
// concurrent use.
type Executor struct {
	db      *bolt.DB
	backend string
	logger  *slog.Logger
	slot    executor.Slot
	current *Transaction
}

var _ executor.StreamExecutor = (*Executor)(nil)

// Option configures Open.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Open opens or creates the database file at path. bbolt locks the file;
// a second Open of the same path waits up to one second and then fails.
func Open(path string, opts ...Option) (*Executor, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	e := &Executor{db: db, backend: Backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Backend returns the backend identifier.
func (e *Executor) Backend() string { return e.backend }

// Compile compiles a bound operation to a *queryfile.Plan.
func (e *Executor) Compile(op queryir.Operation) (executor.Executable, error) {
	return queryfile.Compile(op)
}

// OpenRevision begins a writable transaction.
func (e *Executor) OpenRevision(ctx context.Context) (executor.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := executor.NewGuard(&e.slot)
	if err != nil {
		return nil, err
	}
	tx, err := e.db.Begin(true)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("begin bolt transaction: %w", err)
	}
	e.current = &Transaction{Guard: g, tx: tx}
	e.logger.Debug("transaction started", "backend", e.backend, "revision", g.ID())
	return e.current, nil
}

// Close rolls back an open transaction and closes the database.
func (e *Executor) Close() error {
	if e.current != nil {
		_ = e.current.Rollback()
		e.current = nil
	}
	return e.db.Close()
}

// Run executes a plan inside rev.
func (e *Executor) Run(ctx context.Context, exe executor.Executable, rev executor.Revision) (*executor.Result, error) {
	plan, tx, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}
	name := []byte(plan.Model.Name())

	if plan.Kind == queryir.KindSelect {
		rows, err := scan(plan.Model, tx.tx.Bucket(name))
		if err != nil {
			return nil, err
		}
		return &executor.Result{Rows: plan.Select(rows)}, nil
	}

	b, err := tx.tx.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", plan.Model.Name(), err)
	}
	switch plan.Kind {
	case queryir.KindInsert:
		return insert(plan, b)
	default:
		return modify(plan, b)
	}
}

// Stream executes a select inside rev and returns a cursor over its rows.
func (e *Executor) Stream(ctx context.Context, exe executor.Executable, rev executor.Revision) (executor.Cursor, error) {
	plan, tx, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}
	if plan.Kind != queryir.KindSelect {
		return nil, errs.InvalidArgument("cannot stream %s", plan.Kind)
	}
	if plan.Ordered {
		res, err := e.Run(ctx, exe, rev)
		if err != nil {
			return nil, err
		}
		return executor.NewSliceCursor(res.Rows), nil
	}
	b := tx.tx.Bucket([]byte(plan.Model.Name()))
	if b == nil {
		return executor.NewSliceCursor(nil), nil
	}
	return &cursor{c: b.Cursor(), plan: plan, window: plan.Window()}, nil
}

func (e *Executor) prepare(ctx context.Context, exe executor.Executable, rev executor.Revision) (*queryfile.Plan, *Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	plan, ok := exe.(*queryfile.Plan)
	if !ok {
		return nil, nil, errs.InvalidArgument("%s executor cannot run %T", e.backend, exe)
	}
	tx, ok := rev.(*Transaction)
	if !ok || tx != e.current || tx.Closed() {
		return nil, nil, errs.InvalidArgument("revision does not belong to this %s executor or is closed", e.backend)
	}
	return plan, tx, nil
}

// Transaction is the revision of a bolt executor.
type Transaction struct {
	*executor.Guard
	tx *bolt.Tx
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	if t.Closed() {
		return bolt.ErrTxClosed
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

func insert(plan *queryfile.Plan, b *bolt.Bucket) (*executor.Result, error) {
	m := plan.Model
	pk, hasPK := m.PrimaryKey()
	res := &executor.Result{}

	for _, raw := range plan.Rows {
		row, err := queryfile.Canonical(m, raw)
		if err != nil {
			return nil, err
		}
		var key any
		var k []byte
		switch {
		case !hasPK:
			seq, err := b.NextSequence()
			if err != nil {
				return nil, fmt.Errorf("next sequence: %w", err)
			}
			k = packInt(int64(seq))
		case row[pk.Column()] == nil && pk.Type == model.TypeInt:
			seq, err := b.NextSequence()
			if err != nil {
				return nil, fmt.Errorf("next primary key: %w", err)
			}
			if seq > math.MaxInt64 {
				return nil, fmt.Errorf("primary key sequence of %s overflows", m.Name())
			}
			key = int64(seq)
			row[pk.Column()] = key
			k = packInt(int64(seq))
		default:
			key = row[pk.Column()]
			if key == nil {
				return nil, errs.MissingValue(m.Name(), pk.Name)
			}
			if n, ok := key.(int64); ok && n > 0 && uint64(n) > b.Sequence() {
				if err := b.SetSequence(uint64(n)); err != nil {
					return nil, fmt.Errorf("update sequence: %w", err)
				}
			}
			k = packKey(key)
		}

		if b.Get(k) != nil {
			e := errs.InvalidArgument("duplicate primary key %v", key)
			e.Model = m.Name()
			e.Property = pk.Name
			return nil, e
		}
		if err := put(b, k, row); err != nil {
			return nil, err
		}
		res.Keys = append(res.Keys, key)
		res.Affected++
	}
	return res, nil
}

// modify runs an update or delete. Matching keys are collected before the
// bucket is changed.
func modify(plan *queryfile.Plan, b *bolt.Bucket) (*executor.Result, error) {
	type hit struct {
		key []byte
		row model.Row
	}
	var hits []hit
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		row, err := decode(plan.Model, v)
		if err != nil {
			return nil, err
		}
		if plan.Match(row) {
			hits = append(hits, hit{key: bytes.Clone(k), row: row})
		}
	}

	pk, hasPK := plan.Model.PrimaryKey()
	for _, h := range hits {
		if plan.Kind == queryir.KindDelete {
			if err := b.Delete(h.key); err != nil {
				return nil, fmt.Errorf("delete: %w", err)
			}
			continue
		}
		row := plan.Apply(h.row)
		k := h.key
		if hasPK {
			if nk := packKey(row[pk.Column()]); !bytes.Equal(nk, h.key) {
				if b.Get(nk) != nil {
					return nil, errs.InvalidArgument("duplicate primary key %v", row[pk.Column()])
				}
				if err := b.Delete(h.key); err != nil {
					return nil, fmt.Errorf("delete: %w", err)
				}
				k = nk
			}
		}
		if err := put(b, k, row); err != nil {
			return nil, err
		}
	}
	return &executor.Result{Affected: int64(len(hits))}, nil
}

func put(b *bolt.Bucket, k []byte, row model.Row) error {
	v, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := b.Put(k, v); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// scan reads a whole bucket in key order.
func scan(m *model.Schema, b *bolt.Bucket) ([]model.Row, error) {
	if b == nil {
		return nil, nil
	}
	var rows []model.Row
	err := b.ForEach(func(_, v []byte) error {
		row, err := decode(m, v)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// decode parses a stored record. Undeclared keys are a SCHEMA_MISMATCH.
func decode(m *model.Schema, v []byte) (model.Row, error) {
	d := json.NewDecoder(bytes.NewReader(v))
	d.UseNumber()
	var raw map[string]any
	if err := d.Decode(&raw); err != nil {
		return nil, errs.SchemaMismatch(m.Name(), "", "stored record is not a JSON object: "+err.Error())
	}
	for col := range raw {
		if _, ok := m.LookupColumn(col); !ok {
			return nil, errs.SchemaMismatch(m.Name(), col, "stored record has an undeclared column")
		}
	}
	return queryfile.Canonical(m, raw)
}

func packInt(n int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(n-math.MinInt64))
}

func packKey(key any) []byte {
	switch k := key.(type) {
	case int64:
		return packInt(k)
	case string:
		return []byte(k)
	default:
		return []byte(fmt.Sprint(k))
	}
}

// cursor streams matching rows from a bucket.
type cursor struct {
	c      *bolt.Cursor
	plan   *queryfile.Plan
	window *queryfile.Window
	row    model.Row
	err    error
	begun  bool
	done   bool
}

func (c *cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	for {
		var v []byte
		var k []byte
		if !c.begun {
			k, v = c.c.First()
			c.begun = true
		} else {
			k, v = c.c.Next()
		}
		if k == nil {
			c.done = true
			return false
		}
		row, err := decode(c.plan.Model, v)
		if err != nil {
			c.err = err
			return false
		}
		if !c.plan.Match(row) {
			continue
		}
		keep, done := c.window.Take()
		c.done = done
		if keep {
			c.row = c.plan.Project(row)
			return true
		}
		if done {
			return false
		}
	}
}

func (c *cursor) Row() model.Row { return c.row }
func (c *cursor) Err() error     { return c.err }
func (c *cursor) Close() error   { c.done = true; return nil }
