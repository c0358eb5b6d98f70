package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryfile"
	"github.com/roach88/quarry/internal/queryir"
)

// renameFile is replaced in tests to simulate a crash before the rename.
var renameFile = os.Rename

// Executor runs plans against the documents of one directory.
//
// Executor implements executor.StreamExecutor. It is not safe for
// concurrent use.
type Executor struct {
	dir     string
	format  Format
	codec   codec
	backend string
	logger  *slog.Logger
	slot    executor.Slot
	current *Batch
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

// WithBackend overrides the backend identifier, which defaults to the
// format name.
func WithBackend(name string) Option {
	return func(e *Executor) { e.backend = name }
}

// Open returns an executor over dir, creating the directory if needed.
func Open(dir string, format Format, opts ...Option) (*Executor, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	e := &Executor{
		dir:     dir,
		format:  format,
		codec:   codecFor(format),
		backend: string(format),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Backend returns the backend identifier.
func (e *Executor) Backend() string { return e.backend }

// Path returns the document file of a model.
func (e *Executor) Path(m *model.Schema) string {
	return filepath.Join(e.dir, m.Name()+"."+string(e.format))
}

// Compile compiles a bound operation to a *queryfile.Plan.
func (e *Executor) Compile(op queryir.Operation) (executor.Executable, error) {
	return queryfile.Compile(op)
}

// OpenRevision starts a write batch.
func (e *Executor) OpenRevision(ctx context.Context) (executor.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := executor.NewGuard(&e.slot)
	if err != nil {
		return nil, err
	}
	e.current = &Batch{Guard: g, ex: e, docs: make(map[string]*document)}
	e.logger.Debug("write batch started", "backend", e.backend, "revision", g.ID())
	return e.current, nil
}

// Close discards an open batch.
func (e *Executor) Close() error {
	if e.current != nil {
		_ = e.current.Rollback()
		e.current = nil
	}
	return nil
}

// Run executes a plan inside rev.
func (e *Executor) Run(ctx context.Context, exe executor.Executable, rev executor.Revision) (*executor.Result, error) {
	plan, batch, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}

	if plan.Kind == queryir.KindSelect {
		doc, err := batch.read(plan.Model)
		if err != nil {
			return nil, err
		}
		if err := checkHeader(plan.Model, doc.header, plan.References); err != nil {
			return nil, err
		}
		return &executor.Result{Rows: plan.Select(doc.rows)}, nil
	}

	doc, err := batch.stage(plan.Model)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(plan.Model, doc.header, plan.References); err != nil {
		return nil, err
	}
	switch plan.Kind {
	case queryir.KindInsert:
		return doc.insert(plan)
	case queryir.KindUpdate:
		return doc.update(plan), nil
	default:
		return doc.delete(plan), nil
	}
}

// Stream executes a select inside rev and returns a cursor over its rows.
func (e *Executor) Stream(ctx context.Context, exe executor.Executable, rev executor.Revision) (executor.Cursor, error) {
	plan, batch, err := e.prepare(ctx, exe, rev)
	if err != nil {
		return nil, err
	}
	if plan.Kind != queryir.KindSelect {
		return nil, errs.InvalidArgument("cannot stream %s", plan.Kind)
	}
	if plan.Ordered || batch.docs[plan.Model.Name()] != nil {
		res, err := e.Run(ctx, exe, rev)
		if err != nil {
			return nil, err
		}
		return executor.NewSliceCursor(res.Rows), nil
	}

	f, err := os.Open(e.Path(plan.Model))
	if errors.Is(err, fs.ErrNotExist) {
		return executor.NewSliceCursor(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", plan.Model.Name(), err)
	}
	// Documents written here are kept in key order; anything else is
	// sorted in memory like a full read.
	sorted, err := e.inKeyOrder(plan.Model, f)
	if err == nil && !sorted {
		f.Close()
		res, err := e.Run(ctx, exe, rev)
		if err != nil {
			return nil, err
		}
		return executor.NewSliceCursor(res.Rows), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind %s: %w", plan.Model.Name(), err)
	}
	rr, header, err := e.codec.reader(plan.Model, f)
	if err == nil {
		err = checkHeader(plan.Model, header, plan.References)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileCursor{
		file:   f,
		rows:   canonicalReader{m: plan.Model, rr: rr},
		plan:   plan,
		window: plan.Window(),
	}, nil
}

func (e *Executor) prepare(ctx context.Context, exe executor.Executable, rev executor.Revision) (*queryfile.Plan, *Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	plan, ok := exe.(*queryfile.Plan)
	if !ok {
		return nil, nil, errs.InvalidArgument("%s executor cannot run %T", e.backend, exe)
	}
	batch, ok := rev.(*Batch)
	if !ok || batch != e.current || batch.Closed() {
		return nil, nil, errs.InvalidArgument("revision does not belong to this %s executor or is closed", e.backend)
	}
	return plan, batch, nil
}

// inKeyOrder scans a document and reports whether its rows are in key
// order. A read error ends the scan; the caller's cursor reports it.
func (e *Executor) inKeyOrder(m *model.Schema, f io.Reader) (bool, error) {
	rr, _, err := e.codec.reader(m, f)
	if err != nil {
		return false, err
	}
	cr := canonicalReader{m: m, rr: rr}
	var prev model.Row
	for {
		row, err := cr.next()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if prev != nil && !queryfile.InKeyOrder(m, prev, row) {
			return false, nil
		}
		prev = row
	}
}

// seqPath returns the file holding a model's key high-water mark.
func (e *Executor) seqPath(m *model.Schema) string {
	return filepath.Join(e.dir, "."+filepath.Base(e.Path(m))+".seq")
}

func (e *Executor) readSeq(m *model.Schema) (int64, error) {
	data, err := os.ReadFile(e.seqPath(m))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read key sequence of %s: %w", m.Name(), err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errs.SchemaMismatch(m.Name(), "", "key sequence is not an integer: "+err.Error())
	}
	return n, nil
}

// load reads a whole document from disk.
func (e *Executor) load(m *model.Schema) (*document, error) {
	seq, err := e.readSeq(m)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(e.Path(m))
	if errors.Is(err, fs.ErrNotExist) {
		return &document{model: m, seq: seq}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", m.Name(), err)
	}
	defer f.Close()

	rr, header, err := e.codec.reader(m, f)
	if err != nil {
		return nil, err
	}
	doc := &document{model: m, header: header, seq: seq}
	cr := canonicalReader{m: m, rr: rr}
	for {
		row, err := cr.next()
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		if err != nil {
			return nil, err
		}
		doc.rows = append(doc.rows, row)
	}
}

// save replaces a document atomically, rows in key order. The key
// sequence is written first; a crash in between leaves a gap, never a
// reused key.
func (e *Executor) save(doc *document) error {
	queryfile.SortByKey(doc.model, doc.rows)
	data, err := e.codec.encode(doc.model, doc.rows)
	if err != nil {
		return err
	}
	if doc.seqDirty {
		if err := writeAtomic(e.seqPath(doc.model), []byte(strconv.FormatInt(doc.seq, 10)+"\n")); err != nil {
			return err
		}
		doc.seqDirty = false
	}
	return writeAtomic(e.Path(doc.model), data)
}

// writeAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path. On failure the original file is untouched.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = renameFile(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// fileCursor streams a document straight from its file.
type fileCursor struct {
	file   *os.File
	rows   rowReader
	plan   *queryfile.Plan
	window *queryfile.Window
	row    model.Row
	err    error
	done   bool
}

func (c *fileCursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	for {
		row, err := c.rows.next()
		if errors.Is(err, io.EOF) {
			c.done = true
			return false
		}
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

func (c *fileCursor) Row() model.Row { return c.row }
func (c *fileCursor) Err() error     { return c.err }

func (c *fileCursor) Close() error {
	if c.file == nil {
		return nil
	}
	c.done = true
	err := c.file.Close()
	c.file = nil
	return err
}
