package expr

import (
	"strings"

	"github.com/roach88/quarry/internal/model"
)

// Field returns a free reference to a property by name. It is bound to the
// query's model at execution time.
func Field(name string) model.Property {
	return model.Property{Name: name}
}

func Eq(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpEq, Value: v} }
func Ne(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpNe, Value: v} }
func Lt(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpLt, Value: v} }
func Le(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpLe, Value: v} }
func Gt(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpGt, Value: v} }
func Ge(p model.Property, v any) Comparison { return Comparison{Property: p, Op: OpGe, Value: v} }

// Compare builds a comparison from an operator token such as "=" or ">=".
// "==" and "<>" are accepted as aliases.
func Compare(p model.Property, op string, v any) (Comparison, bool) {
	switch op {
	case "=", "==":
		return Eq(p, v), true
	case "!=", "<>":
		return Ne(p, v), true
	case "<":
		return Lt(p, v), true
	case "<=":
		return Le(p, v), true
	case ">":
		return Gt(p, v), true
	case ">=":
		return Ge(p, v), true
	}
	return Comparison{}, false
}

// And groups children with AND. The slice is copied.
func And(children ...Expression) Many {
	return Many{Logic: LogicAnd, Children: append([]Expression(nil), children...)}
}

// Or groups children with OR. The slice is copied.
func Or(children ...Expression) Many {
	return Many{Logic: LogicOr, Children: append([]Expression(nil), children...)}
}

// Negate wraps e in Not.
func Negate(e Expression) Not {
	return Not{Child: e}
}

func HasPrefix(p model.Property, s string) Text {
	return Text{Property: p, Mode: TextPrefix, Pattern: s}
}

func HasSuffix(p model.Property, s string) Text {
	return Text{Property: p, Mode: TextSuffix, Pattern: s}
}

func Contains(p model.Property, s string) Text {
	return Text{Property: p, Mode: TextContains, Pattern: s}
}

// Matches matches the whole value.
func Matches(p model.Property, s string) Text {
	return Text{Property: p, Mode: TextExact, Pattern: s}
}

// Defer creates a proxy expression resolved at bind time.
func Defer(name string, fn Resolver) Deferred {
	return Deferred{Name: name, Resolve: fn}
}

// Conjoin ANDs b onto a. A nil a yields b unchanged; an existing AND group
// is extended rather than nested.
func Conjoin(a, b Expression) Expression {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if m, ok := a.(Many); ok && m.Logic == LogicAnd && len(m.Children) > 0 {
		children := make([]Expression, 0, len(m.Children)+1)
		children = append(children, m.Children...)
		return Many{Logic: LogicAnd, Children: append(children, b)}
	}
	return Many{Logic: LogicAnd, Children: []Expression{a, b}}
}

// Asc orders by p ascending.
func Asc(p model.Property) Order {
	return Order{Property: p, Direction: Ascending}
}

// Desc orders by p descending.
func Desc(p model.Property) Order {
	return Order{Property: p, Direction: Descending}
}

// By orders by a property name. An empty direction means ascending; "asc",
// "ascending", "desc" and "descending" are accepted in any case. Other
// directions are rejected when the query is bound.
func By(name, direction string) Order {
	return Order{Property: Field(name), Direction: normalizeDirection(direction)}
}

// ParseOrder parses "name", "name DESC", "name asc" or "-name".
func ParseOrder(term string) Order {
	term = strings.TrimSpace(term)
	if strings.HasPrefix(term, "-") {
		return By(strings.TrimSpace(term[1:]), "desc")
	}
	name, dir, _ := strings.Cut(term, " ")
	return By(name, strings.TrimSpace(dir))
}

func normalizeDirection(d string) Direction {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "asc", "ascending":
		return Ascending
	case "desc", "descending":
		return Descending
	}
	return Direction(d)
}
