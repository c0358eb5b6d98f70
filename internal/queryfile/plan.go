// Package queryfile compiles operations for backends that hold whole
// documents or key/value records and evaluate filters in memory.
//
// A Plan carries a match predicate, a sort comparator, an offset/limit
// window, the assignments of an update and the rows of an insert. Its
// semantics follow SQL: comparisons involving null are unknown, and only
// rows whose filter is true are selected.
package queryfile

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

// Assignment sets one column of an updated row.
type Assignment struct {
	Column string
	Value  any
}

// Plan is the executable form of one operation on an in-memory backend.
type Plan struct {
	Kind  queryir.Kind
	Model *model.Schema

	// Columns are the projected columns of a select.
	Columns []string

	// Ordered is set when the select requested an explicit ordering.
	Ordered bool

	Offset int
	Limit  int

	// Set holds the assignments of an update.
	Set []Assignment

	// Rows holds the rows of an insert.
	Rows []model.Row

	// References lists every column the operation touches.
	References []string

	where expr.Expression
	order []expr.Order
}

// Compile turns a bound operation into a Plan.
func Compile(op queryir.Operation) (*Plan, error) {
	if op == nil {
		return nil, fmt.Errorf("cannot compile nil operation")
	}
	p := &Plan{
		Kind:       op.Kind(),
		Model:      op.Schema(),
		Limit:      queryir.NoLimit,
		References: queryir.Columns(op),
	}

	switch o := op.(type) {
	case queryir.Select:
		for _, prop := range o.Projection() {
			p.Columns = append(p.Columns, prop.Column())
		}
		p.where = o.Where
		p.order = o.OrderBy
		p.Ordered = len(o.OrderBy) > 0
		p.Offset, p.Limit = o.Offset, o.Limit
	case queryir.Insert:
		p.Rows = o.Rows
	case queryir.Update:
		p.where = o.Where
		for _, a := range o.Set {
			p.Set = append(p.Set, Assignment{Column: a.Property.Column(), Value: a.Value})
		}
	case queryir.Delete:
		p.where = o.Where
	default:
		return nil, fmt.Errorf("unsupported operation type: %T", op)
	}

	if err := check(p.where); err != nil {
		return nil, fmt.Errorf("compile %s %s: %w", op.Kind(), op.Schema().Name(), err)
	}
	return p, nil
}

// check rejects trees that Bind would not have produced.
func check(e expr.Expression) error {
	switch node := e.(type) {
	case nil, expr.Comparison, expr.Text:
		return nil
	case expr.Many:
		if len(node.Children) == 0 {
			return errs.EmptyExpression(string(node.Logic))
		}
		for _, c := range node.Children {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	case expr.Not:
		return check(node.Child)
	case expr.Deferred:
		return fmt.Errorf("deferred expression %q was not resolved", node.Name)
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
}

// Match reports whether a canonical row satisfies the plan's filter.
func (p *Plan) Match(row model.Row) bool {
	if p.where == nil {
		return true
	}
	return eval(p.where, row) == yes
}

// Compare orders two canonical rows: the requested ordering first, then
// the primary key, or every remaining column when there is none.
func (p *Plan) Compare(a, b model.Row) int {
	used := make(map[string]bool, len(p.order)+1)
	for _, o := range p.order {
		col := o.Property.Column()
		used[col] = true
		c := compareNullsFirst(a[col], b[col])
		if o.Descending() {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if pk, ok := p.Model.PrimaryKey(); ok {
		return compareNullsFirst(a[pk.Column()], b[pk.Column()])
	}
	for _, col := range p.Model.Columns() {
		if used[col] {
			continue
		}
		if c := compareNullsFirst(a[col], b[col]); c != 0 {
			return c
		}
	}
	return 0
}

// Sort orders rows in place with Compare.
func (p *Plan) Sort(rows []model.Row) {
	slices.SortStableFunc(rows, p.Compare)
}

// SortByKey orders rows the way an unordered select returns them: by
// primary key, or by every column when the model has none.
func SortByKey(m *model.Schema, rows []model.Row) {
	(&Plan{Model: m}).Sort(rows)
}

// InKeyOrder reports whether b may follow a in an unordered select.
func InKeyOrder(m *model.Schema, a, b model.Row) bool {
	return (&Plan{Model: m}).Compare(a, b) <= 0
}

// Select filters, sorts and windows a full set of canonical rows.
func (p *Plan) Select(rows []model.Row) []model.Row {
	var out []model.Row
	for _, r := range rows {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	p.Sort(out)
	w := p.Window()
	var windowed []model.Row
	for _, r := range out {
		keep, done := w.Take()
		if keep {
			windowed = append(windowed, p.Project(r))
		}
		if done {
			break
		}
	}
	return windowed
}

// Project keeps the selected columns of a row.
func (p *Plan) Project(row model.Row) model.Row {
	out := make(model.Row, len(p.Columns))
	for _, c := range p.Columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Apply returns a copy of row with the update's assignments applied.
func (p *Plan) Apply(row model.Row) model.Row {
	out := make(model.Row, len(row)+len(p.Set))
	for k, v := range row {
		out[k] = v
	}
	for _, a := range p.Set {
		out[a.Column] = a.Value
	}
	return out
}

// Window tracks offset and limit over a stream of matching rows.
type Window struct {
	skip  int
	left  int
	limit bool
}

// Window starts a new offset/limit window.
func (p *Plan) Window() *Window {
	return &Window{skip: p.Offset, left: p.Limit, limit: p.Limit != queryir.NoLimit}
}

// Take accounts for one matching row. keep reports whether the row is in
// the window; done reports that no later row can be.
func (w *Window) Take() (keep, done bool) {
	if w.Exhausted() {
		return false, true
	}
	if w.skip > 0 {
		w.skip--
		return false, false
	}
	if w.limit {
		w.left--
		return true, w.left == 0
	}
	return true, false
}

// Exhausted reports whether the window can accept no more rows.
func (w *Window) Exhausted() bool {
	return w.limit && w.left <= 0
}

// Canonical coerces the declared columns of a raw row into canonical
// values. Undeclared columns are dropped. A value that cannot be coerced
// is a SCHEMA_MISMATCH.
func Canonical(m *model.Schema, raw model.Row) (model.Row, error) {
	out := make(model.Row, len(raw))
	for _, p := range m.Properties() {
		v, ok := raw[p.Column()]
		if !ok {
			continue
		}
		cv, err := p.Coerce(v)
		if err != nil {
			return nil, errs.SchemaMismatch(m.Name(), p.Column(), err.Error())
		}
		out[p.Column()] = cv
	}
	return out, nil
}

func compareNullsFirst(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

// compareValues orders two non-null canonical values. ok is false when the
// values are not comparable; they are then ordered by type name.
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y), true
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), true
		case float64:
			return cmp.Compare(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y), true
		case int64:
			return cmp.Compare(x, float64(y)), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp.Compare(boolRank(x), boolRank(y)), true
		}
	case map[string]any:
		if y, ok := b.(map[string]any); ok {
			return cmp.Compare(fmt.Sprint(x), fmt.Sprint(y)), true
		}
	}
	return cmp.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)), false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
