package expr

import (
	"fmt"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/model"
)

// maxDeferredDepth bounds chains of Deferred nodes resolving to Deferred.
const maxDeferredDepth = 16

// Bind resolves e against scope. A nil e binds to nil.
//
// The returned tree contains no Deferred nodes, only declared properties of
// scope.Model(), and literals coerced to their property types. e itself is
// left untouched.
func Bind(e Expression, scope Scope) (Expression, error) {
	b := &binder{scope: scope, schema: scope.Model()}
	return b.bind(e, 0)
}

// BindOrder resolves an ordering directive against scope.
func BindOrder(o Order, scope Scope) (Order, error) {
	p, err := scope.Model().Bind(o.Property)
	if err != nil {
		return Order{}, err
	}
	switch o.Direction {
	case Ascending, Descending:
	default:
		e := errs.InvalidArgument("invalid sort direction %q", o.Direction)
		e.Property = o.Property.Name
		return Order{}, e
	}
	return Order{Property: p, Direction: o.Direction}, nil
}

type binder struct {
	scope  Scope
	schema *model.Schema
}

func (b *binder) bind(e Expression, depth int) (Expression, error) {
	if e == nil {
		return nil, nil
	}

	switch node := e.(type) {
	case Comparison:
		return b.bindComparison(node)
	case *Comparison:
		return b.bindComparison(*node)
	case Many:
		return b.bindMany(node, depth)
	case *Many:
		return b.bindMany(*node, depth)
	case Text:
		return b.bindText(node)
	case *Text:
		return b.bindText(*node)
	case Not:
		return b.bindNot(node, depth)
	case *Not:
		return b.bindNot(*node, depth)
	case Deferred:
		return b.bindDeferred(node, depth)
	case *Deferred:
		return b.bindDeferred(*node, depth)
	default:
		return nil, errs.InvalidArgument("unsupported expression type %T", e)
	}
}

func (b *binder) bindComparison(c Comparison) (Expression, error) {
	switch c.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
	default:
		return nil, errs.InvalidArgument("unsupported operator %q", c.Op)
	}

	p, err := b.schema.Bind(c.Property)
	if err != nil {
		return nil, err
	}

	if other, ok := c.Other(); ok {
		bound, err := b.schema.Bind(other)
		if err != nil {
			return nil, err
		}
		return Comparison{Property: p, Op: c.Op, Value: bound}, nil
	}

	if c.Value == nil && c.Op != OpEq && c.Op != OpNe {
		e := errs.InvalidArgument("operator %s cannot compare with null", c.Op)
		e.Model, e.Property = b.schema.Name(), p.Name
		return nil, e
	}
	v, err := p.Coerce(c.Value)
	if err != nil {
		return nil, err
	}
	return Comparison{Property: p, Op: c.Op, Value: v}, nil
}

func (b *binder) bindMany(m Many, depth int) (Expression, error) {
	if m.Logic != LogicAnd && m.Logic != LogicOr {
		return nil, errs.InvalidArgument("unsupported logic %q", m.Logic)
	}
	if len(m.Children) == 0 {
		return nil, errs.EmptyExpression(string(m.Logic))
	}
	children := make([]Expression, len(m.Children))
	for i, child := range m.Children {
		bound, err := b.bind(child, depth)
		if err != nil {
			return nil, err
		}
		if bound == nil {
			return nil, errs.InvalidArgument("nil child at position %d of %s group", i, m.Logic)
		}
		children[i] = bound
	}
	return Many{Logic: m.Logic, Children: children}, nil
}

func (b *binder) bindText(t Text) (Expression, error) {
	switch t.Mode {
	case TextPrefix, TextSuffix, TextContains, TextExact:
	default:
		return nil, errs.InvalidArgument("unsupported text mode %q", t.Mode)
	}
	p, err := b.schema.Bind(t.Property)
	if err != nil {
		return nil, err
	}
	if p.Type != model.TypeString && p.Type != model.TypeUUID {
		e := errs.InvalidArgument("text matching needs a string property, %s is %s", p.Name, p.Type)
		e.Model, e.Property = b.schema.Name(), p.Name
		return nil, e
	}
	t.Property = p
	return t, nil
}

func (b *binder) bindNot(n Not, depth int) (Expression, error) {
	if n.Child == nil {
		return nil, errs.InvalidArgument("NOT without a child")
	}
	child, err := b.bind(n.Child, depth)
	if err != nil {
		return nil, err
	}
	return Not{Child: child}, nil
}

func (b *binder) bindDeferred(d Deferred, depth int) (Expression, error) {
	if depth >= maxDeferredDepth {
		return nil, errs.InvalidArgument("deferred expression %q nests deeper than %d", d.Name, maxDeferredDepth)
	}
	if d.Resolve == nil {
		return nil, errs.InvalidArgument("deferred expression %q has no resolver", d.Name)
	}
	resolved, err := d.Resolve(b.scope)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", d.Name, err)
	}
	if resolved == nil {
		return nil, errs.InvalidArgument("deferred expression %q resolved to nothing", d.Name)
	}
	return b.bind(resolved, depth+1)
}

// Properties returns every property referenced by a bound tree, in
// depth-first order, including the right-hand side of field comparisons.
func Properties(e Expression) []model.Property {
	var out []model.Property
	var walk func(Expression)
	walk = func(e Expression) {
		switch node := e.(type) {
		case Comparison:
			out = append(out, node.Property)
			if other, ok := node.Other(); ok {
				out = append(out, other)
			}
		case Many:
			for _, c := range node.Children {
				walk(c)
			}
		case Text:
			out = append(out, node.Property)
		case Not:
			walk(node.Child)
		}
	}
	walk(e)
	return out
}

// StaticScope is a Scope with fixed values, for callers that bind outside an
// executor.
type StaticScope struct {
	Schema      *model.Schema
	BackendName string
}

func (s StaticScope) Model() *model.Schema { return s.Schema }
func (s StaticScope) Backend() string      { return s.BackendName }
