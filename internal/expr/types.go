package expr

import (
	"github.com/roach88/quarry/internal/model"
)

// Expression is a node of a filter tree.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	exprNode()
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Comparison compares a property with a literal or with another property.
//
// When Value is a model.Property the comparison is field to field. A nil
// Value with OpEq or OpNe tests for null.
type Comparison struct {
	Property model.Property
	Op       Op
	Value    any
}

func (Comparison) exprNode() {}

// Other returns the right-hand property of a field-to-field comparison.
func (c Comparison) Other() (model.Property, bool) {
	p, ok := c.Value.(model.Property)
	return p, ok
}

// Logic is the boolean operator of a Many group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Many groups child expressions under AND or OR. Child order is preserved
// by every compiler.
type Many struct {
	Logic    Logic
	Children []Expression
}

func (Many) exprNode() {}

// TextMode selects how a Text expression matches.
type TextMode string

const (
	TextPrefix   TextMode = "prefix"
	TextSuffix   TextMode = "suffix"
	TextContains TextMode = "contains"
	TextExact    TextMode = "exact"
)

// Text matches a string property against a literal. The literal is always
// passed as a parameter; backend wildcards inside it are escaped by the
// compiler, never interpreted.
type Text struct {
	Property model.Property
	Mode     TextMode
	Pattern  string
	Fold     bool // case-insensitive
}

func (Text) exprNode() {}

// CaseInsensitive returns a copy of t that ignores case.
//
// Folding depends on the backend. In-memory backends (files, bolt) apply
// Unicode case folding after NFC normalisation. SQL backends compare
// LOWER(column) with the lowered pattern: SQLite lowers ASCII letters
// only, Postgres follows the database collation, and neither normalises.
// Patterns outside ASCII can therefore match differently.
func (t Text) CaseInsensitive() Text {
	t.Fold = true
	return t
}

// Not negates its child.
type Not struct {
	Child Expression
}

func (Not) exprNode() {}

// Scope is the context a Deferred expression is resolved in.
type Scope interface {
	// Model is the model the query runs on.
	Model() *model.Schema

	// Backend is the identifier of the executor's backend.
	Backend() string
}

// Resolver builds an expression once the model and backend are known.
type Resolver func(Scope) (Expression, error)

// Deferred is a proxy whose expression is produced at bind time. It only
// looks things up through the Scope; it never changes the properties it
// resolves.
type Deferred struct {
	Name    string
	Resolve Resolver
}

func (Deferred) exprNode() {}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Order is one ordering directive.
type Order struct {
	Property  model.Property
	Direction Direction
}

// Descending reports whether the order is descending.
func (o Order) Descending() bool {
	return o.Direction == Descending
}
