package filestore

import (
	"sort"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryfile"
)

// Batch is the revision of a file executor: the documents it has touched,
// held in memory until Commit.
type Batch struct {
	*executor.Guard
	ex   *Executor
	docs map[string]*document
}

// read returns the staged document, or loads it without staging.
func (b *Batch) read(m *model.Schema) (*document, error) {
	if doc, ok := b.docs[m.Name()]; ok {
		return doc, nil
	}
	return b.ex.load(m)
}

// stage returns the document for writing, loading it on first use.
func (b *Batch) stage(m *model.Schema) (*document, error) {
	if doc, ok := b.docs[m.Name()]; ok {
		return doc, nil
	}
	doc, err := b.ex.load(m)
	if err != nil {
		return nil, err
	}
	b.docs[m.Name()] = doc
	return doc, nil
}

// Commit writes every staged document and closes the batch. Documents are
// written in model name order; a failure leaves earlier documents replaced
// and the failing one untouched.
func (b *Batch) Commit() error {
	if b.Closed() {
		return errs.InvalidArgument("revision %s is closed", b.ID())
	}
	defer b.Close()

	names := make([]string, 0, len(b.docs))
	for name, doc := range b.docs {
		if doc.dirty {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.ex.save(b.docs[name]); err != nil {
			b.ex.logger.Error("write batch failed", "backend", b.ex.backend, "revision", b.ID(), "model", name, "error", err)
			return err
		}
	}
	b.ex.logger.Debug("write batch committed", "backend", b.ex.backend, "revision", b.ID(), "documents", len(names))
	return nil
}

// Rollback discards the batch. It is a no-op once committed.
func (b *Batch) Rollback() error {
	if !b.Close() {
		return nil
	}
	b.docs = nil
	b.ex.logger.Debug("write batch discarded", "backend", b.ex.backend, "revision", b.ID())
	return nil
}

// document is the canonical content of one model's file.
type document struct {
	model  *model.Schema
	header []string
	rows   []model.Row
	dirty  bool

	// seq is the highest int key assigned so far.
	seq      int64
	seqDirty bool
}

func (d *document) insert(plan *queryfile.Plan) (*executor.Result, error) {
	pk, hasPK := d.model.PrimaryKey()
	res := &executor.Result{}
	for _, raw := range plan.Rows {
		row, err := queryfile.Canonical(d.model, raw)
		if err != nil {
			return nil, err
		}
		var key any
		if hasPK {
			col := pk.Column()
			key = row[col]
			if key == nil && pk.Type == model.TypeInt {
				key = d.nextKey(col)
				row[col] = key
			}
			if key != nil && d.hasKey(col, key) {
				e := errs.InvalidArgument("duplicate primary key %v", key)
				e.Model = d.model.Name()
				e.Property = pk.Name
				return nil, e
			}
			if n, ok := key.(int64); ok && n > d.seq {
				d.seq = n
				d.seqDirty = true
			}
		}
		d.rows = append(d.rows, row)
		res.Keys = append(res.Keys, key)
		res.Affected++
	}
	// Later reads see the full model, so the header is no longer a limit.
	d.header = nil
	d.dirty = true
	return res, nil
}

// nextKey returns the key after the highest one ever assigned, so keys of
// deleted rows are not reused.
func (d *document) nextKey(col string) int64 {
	max := d.seq
	for _, r := range d.rows {
		if n, ok := r[col].(int64); ok && n > max {
			max = n
		}
	}
	return max + 1
}

func (d *document) hasKey(col string, key any) bool {
	for _, r := range d.rows {
		if r[col] == key {
			return true
		}
	}
	return false
}

func (d *document) update(plan *queryfile.Plan) *executor.Result {
	res := &executor.Result{}
	for i, r := range d.rows {
		if plan.Match(r) {
			d.rows[i] = plan.Apply(r)
			res.Affected++
		}
	}
	d.dirty = d.dirty || res.Affected > 0
	return res
}

func (d *document) delete(plan *queryfile.Plan) *executor.Result {
	res := &executor.Result{}
	kept := d.rows[:0]
	for _, r := range d.rows {
		if plan.Match(r) {
			res.Affected++
			continue
		}
		kept = append(kept, r)
	}
	d.rows = kept
	d.dirty = d.dirty || res.Affected > 0
	return res
}
