// Package expr provides the immutable expression tree used in query filters
// and orderings.
//
// Expressions are pure data. They never hold a connection, an executor or a
// backend name, so one tree can be compiled by every backend:
//
//	[expr tree] → querysql.Compiler  → "(color = ?) AND (name LIKE ? ESCAPE '\')", ["red", "ap%"]
//	            → queryfile.Compile  → func(model.Row) bool
//
// # Sealed Interface
//
// Expression is sealed with a marker method. The node types are Comparison,
// Many (AND/OR groups), Text (prefix/suffix/contains/exact matching), Not and
// Deferred. Backends compile trees with exhaustive type switches.
//
// # Binding
//
// Properties inside a tree may be free references (expr.Field("name")) or
// belong to a model (Fruit.Field("name")). Bind resolves a tree against the
// model a query runs on: Deferred nodes are resolved, every property is
// replaced by the declared one (so storage names apply), and literals are
// coerced to the property's type. Bind reports UNBOUND_PROPERTY for
// undeclared properties and EMPTY_EXPRESSION for AND/OR groups without
// children; an empty group is ambiguous between "always true" and "always
// false" and is never guessed.
package expr
