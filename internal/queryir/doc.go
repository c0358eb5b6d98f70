// Package queryir provides the backend-agnostic operation representation
// that sits between the query builders and the backend compilers.
//
// ARCHITECTURE:
//
//	[query builder] → [Operation] → querysql.Compiler   → *querysql.Program
//	                              → queryfile.Compile   → *queryfile.Plan
//
// An Operation is produced once per execution from a query's immutable
// state, bound against the query's model, then handed to the executor's
// compiler. Operations are immutable values: compilers read them and never
// change them.
//
// OPERATIONS:
//
//   - Select(model, fields, where, order_by, limit, offset)
//   - Insert(model, items)
//   - Update(model, where, assignments)
//   - Delete(model, where)
//
// SEALED INTERFACE:
//
// Operation is sealed with a marker method, so backends can switch over the
// four operation types exhaustively:
//
//	switch op := operation.(type) {
//	case queryir.Select:
//	case queryir.Insert:
//	case queryir.Update:
//	case queryir.Delete:
//	}
//
// BINDING:
//
// Bind checks an operation against its model before any I/O happens:
//
//   - every property in filters, orderings, projections and assignments must
//     be declared on the model (UNBOUND_PROPERTY)
//   - AND/OR groups must have children (EMPTY_EXPRESSION)
//   - limit and offset must not be negative, directions must be valid,
//     values must coerce to their property types (INVALID_ARGUMENT)
//
// Deferred expressions are resolved during binding, with the executor's
// backend identifier in scope. Insert items are converted to storage rows
// and missing string/uuid primary keys are generated.
package queryir
