package queryir

import (
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
)

// Bind validates op against its model and returns the bound operation.
//
// Bind is a pure function: op is not modified. The backend identifier is
// made available to Deferred expressions.
func Bind(op Operation, backend string) (Operation, error) {
	if op == nil {
		return nil, errs.InvalidArgument("cannot bind nil operation")
	}
	if op.Schema() == nil {
		return nil, errs.InvalidArgument("%s operation has no model", op.Kind())
	}
	b := &binder{scope: expr.StaticScope{Schema: op.Schema(), BackendName: backend}}

	switch o := op.(type) {
	case Select:
		return b.bindSelect(o)
	case Insert:
		return b.bindInsert(o)
	case Update:
		return b.bindUpdate(o)
	case Delete:
		return b.bindDelete(o)
	default:
		return nil, errs.InvalidArgument("unsupported operation type %T", op)
	}
}

// binder carries the scope through one Bind call.
type binder struct {
	scope expr.StaticScope
}

func (b *binder) schema() *model.Schema {
	return b.scope.Schema
}

func (b *binder) bindSelect(s Select) (Operation, error) {
	if s.Limit < NoLimit {
		return nil, errs.InvalidArgument("limit must not be negative, got %d", s.Limit)
	}
	if s.Offset < 0 {
		return nil, errs.InvalidArgument("offset must not be negative, got %d", s.Offset)
	}

	out := Select{Model: s.Model, Limit: s.Limit, Offset: s.Offset}

	for _, f := range s.Fields {
		p, err := b.schema().Bind(f)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, p)
	}

	where, err := expr.Bind(s.Where, b.scope)
	if err != nil {
		return nil, err
	}
	out.Where = where

	for _, o := range s.OrderBy {
		bound, err := expr.BindOrder(o, b.scope)
		if err != nil {
			return nil, err
		}
		out.OrderBy = append(out.OrderBy, bound)
	}
	return out, nil
}

func (b *binder) bindInsert(ins Insert) (Operation, error) {
	out := Insert{Model: ins.Model, Items: make([]model.Values, len(ins.Items))}
	pk, hasPK := b.schema().PrimaryKey()

	for i, item := range ins.Items {
		copied := make(model.Values, len(item))
		for k, v := range item {
			copied[k] = v
		}
		if hasPK && pk.Type != model.TypeInt {
			if v, ok := copied[pk.Name]; !ok || v == nil {
				copied[pk.Name] = uuid.NewString()
			}
		}
		row, err := b.schema().RowFromValues(copied)
		if err != nil {
			return nil, err
		}
		if err := b.requireValues(row); err != nil {
			return nil, err
		}
		out.Items[i] = copied
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// requireValues rejects an insert row that leaves a required property
// without a value, unless the property's value is generated.
func (b *binder) requireValues(row model.Row) error {
	for _, p := range b.schema().Properties() {
		if p.Required && !p.HasDefault && !p.Generated() && row[p.Column()] == nil {
			return errs.MissingValue(b.schema().Name(), p.Name)
		}
	}
	return nil
}

func (b *binder) bindUpdate(u Update) (Operation, error) {
	if len(u.Set) == 0 {
		return nil, errs.InvalidArgument("update of %s sets no values", u.Model.Name())
	}
	out := Update{Model: u.Model}

	seen := make(map[string]bool, len(u.Set))
	for _, a := range u.Set {
		p, err := b.schema().Bind(a.Property)
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, errs.InvalidArgument("update sets %s twice", p.Name)
		}
		seen[p.Name] = true
		v, err := p.Coerce(a.Value)
		if err != nil {
			return nil, err
		}
		out.Set = append(out.Set, Assignment{Property: p, Value: v})
	}

	where, err := expr.Bind(u.Where, b.scope)
	if err != nil {
		return nil, err
	}
	out.Where = where
	return out, nil
}

func (b *binder) bindDelete(d Delete) (Operation, error) {
	where, err := expr.Bind(d.Where, b.scope)
	if err != nil {
		return nil, err
	}
	return Delete{Model: d.Model, Where: where}, nil
}

// AssignmentsFrom converts a field→value mapping to assignments in a stable
// (name) order, so equal mappings always compile to equal statements.
func AssignmentsFrom(values model.Values) []Assignment {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Assignment, len(names))
	for i, name := range names {
		out[i] = Assignment{Property: expr.Field(name), Value: values[name]}
	}
	return out
}

// Columns returns the storage columns a bound operation touches, in first
// use order without duplicates. Executors compare them with the backend's
// current schema.
func Columns(op Operation) []string {
	var cols []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	addExpr := func(e expr.Expression) {
		for _, p := range expr.Properties(e) {
			add(p.Column())
		}
	}

	switch o := op.(type) {
	case Select:
		for _, p := range o.Projection() {
			add(p.Column())
		}
		addExpr(o.Where)
		for _, ord := range o.OrderBy {
			add(ord.Property.Column())
		}
	case Insert:
		for _, p := range o.Model.Properties() {
			for _, row := range o.Rows {
				if _, ok := row[p.Column()]; ok {
					add(p.Column())
					break
				}
			}
		}
	case Update:
		for _, a := range o.Set {
			add(a.Property.Column())
		}
		addExpr(o.Where)
	case Delete:
		addExpr(o.Where)
	}
	return cols
}
