package query

import (
	"context"
	"slices"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/task"
)

// SelectQuery reads records. It is an immutable value.
type SelectQuery struct {
	coll   *Collection
	fields []model.Property
	where  expr.Expression
	order  []expr.Order
	limit  int
	offset int
	err    error
}

// Where narrows the query: every expression is ANDed with the current
// filter.
func (q SelectQuery) Where(where ...expr.Expression) SelectQuery {
	for _, e := range where {
		q.where = expr.Conjoin(q.where, e)
	}
	return q
}

// OrderBy appends ordering directives.
func (q SelectQuery) OrderBy(orders ...expr.Order) SelectQuery {
	q.order = append(slices.Clip(q.order), orders...)
	return q
}

// Limit caps the number of records. A negative n is an error.
func (q SelectQuery) Limit(n int) SelectQuery {
	if n < 0 {
		return q.fail(errs.InvalidArgument("limit must not be negative, got %d", n))
	}
	q.limit = n
	return q
}

// Offset skips the first n records. A negative n is an error.
func (q SelectQuery) Offset(n int) SelectQuery {
	if n < 0 {
		return q.fail(errs.InvalidArgument("offset must not be negative, got %d", n))
	}
	q.offset = n
	return q
}

func (q SelectQuery) fail(err error) SelectQuery {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Err returns the first builder error, if any.
func (q SelectQuery) Err() error { return q.err }

// Operation returns the unbound operation the query describes.
func (q SelectQuery) Operation() (queryir.Operation, error) {
	if q.err != nil {
		return nil, q.err
	}
	return queryir.Select{
		Model:   q.coll.schema,
		Fields:  slices.Clone(q.fields),
		Where:   q.where,
		OrderBy: slices.Clone(q.order),
		Limit:   q.limit,
		Offset:  q.offset,
	}, nil
}

// Equal reports whether two queries describe the same select on the same
// collection.
func (q SelectQuery) Equal(o SelectQuery) bool {
	if q.coll != o.coll || q.limit != o.limit || q.offset != o.offset {
		return false
	}
	if !sameErr(q.err, o.err) || !expr.Equal(q.where, o.where) || !expr.EqualOrders(q.order, o.order) {
		return false
	}
	if len(q.fields) != len(o.fields) {
		return false
	}
	for i := range q.fields {
		if q.fields[i].Name != o.fields[i].Name || q.fields[i].Model != o.fields[i].Model {
			return false
		}
	}
	return true
}

// Execute runs the query and returns the matching records. The first row
// that cannot be converted aborts the query.
func (q SelectQuery) Execute(ctx context.Context) ([]*model.Record, error) {
	op, err := q.Operation()
	if err != nil {
		return nil, err
	}
	bound, exe, err := q.coll.prepare(op)
	if err != nil {
		return nil, err
	}
	ex, err := q.coll.simple()
	if err != nil {
		return nil, err
	}
	st, err := task.NewSelect(ex, bound, exe, q.coll.taskOptions()...)
	if err != nil {
		return nil, err
	}
	return st.Records(ctx)
}

// Stream returns a task yielding the matching records lazily. The query is
// bound and compiled immediately; no I/O happens until the first Next.
func (q SelectQuery) Stream(ctx context.Context) (*task.StreamTask, error) {
	op, err := q.Operation()
	if err != nil {
		return nil, err
	}
	bound, exe, err := q.coll.prepare(op)
	if err != nil {
		return nil, err
	}
	ex, ok := q.coll.exec.(executor.StreamExecutor)
	if !ok {
		return nil, errs.InvalidArgument("backend %s cannot stream", q.coll.exec.Backend())
	}
	return task.NewStream(ctx, ex, bound, exe, q.coll.taskOptions()...)
}

// First returns the first matching record, or nil when nothing matches.
func (q SelectQuery) First(ctx context.Context) (*model.Record, error) {
	recs, err := q.Limit(1).Execute(ctx)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// InsertQuery adds records. It is an immutable value.
type InsertQuery struct {
	coll  *Collection
	items []model.Values
	err   error
}

// Values appends items. Each item is copied.
func (q InsertQuery) Values(items ...model.Values) InsertQuery {
	q.items = slices.Clip(q.items)
	for _, item := range items {
		cp := make(model.Values, len(item))
		for k, v := range item {
			cp[k] = v
		}
		q.items = append(q.items, cp)
	}
	return q
}

// Err returns the first builder error, if any.
func (q InsertQuery) Err() error { return q.err }

// Operation returns the unbound operation the query describes.
func (q InsertQuery) Operation() (queryir.Operation, error) {
	if q.err != nil {
		return nil, q.err
	}
	items := make([]model.Values, len(q.items))
	for i, item := range q.items {
		cp := make(model.Values, len(item))
		for k, v := range item {
			cp[k] = v
		}
		items[i] = cp
	}
	return queryir.Insert{Model: q.coll.schema, Items: items}, nil
}

// Execute inserts the items. An insert without items does nothing.
func (q InsertQuery) Execute(ctx context.Context) (task.WriteResult, error) {
	op, err := q.Operation()
	if err != nil {
		return task.WriteResult{}, err
	}
	if len(q.items) == 0 {
		return task.WriteResult{}, nil
	}
	return q.coll.write(ctx, op)
}

// UpdateQuery changes records. It is an immutable value.
type UpdateQuery struct {
	coll  *Collection
	where expr.Expression
	set   []queryir.Assignment
	err   error
}

// Where narrows the update; expressions are ANDed.
func (q UpdateQuery) Where(where ...expr.Expression) UpdateQuery {
	for _, e := range where {
		q.where = expr.Conjoin(q.where, e)
	}
	return q
}

// Set assigns a value to a property.
func (q UpdateQuery) Set(name string, v any) UpdateQuery {
	q.set = append(slices.Clip(q.set), queryir.Assignment{Property: expr.Field(name), Value: v})
	return q
}

// SetValues assigns every value of the mapping, in name order.
func (q UpdateQuery) SetValues(values model.Values) UpdateQuery {
	q.set = append(slices.Clip(q.set), queryir.AssignmentsFrom(values)...)
	return q
}

// Err returns the first builder error, if any.
func (q UpdateQuery) Err() error { return q.err }

// Operation returns the unbound operation the query describes.
func (q UpdateQuery) Operation() (queryir.Operation, error) {
	if q.err != nil {
		return nil, q.err
	}
	return queryir.Update{Model: q.coll.schema, Where: q.where, Set: slices.Clone(q.set)}, nil
}

// Execute applies the update.
func (q UpdateQuery) Execute(ctx context.Context) (task.WriteResult, error) {
	op, err := q.Operation()
	if err != nil {
		return task.WriteResult{}, err
	}
	return q.coll.write(ctx, op)
}

// DeleteQuery removes records. It is an immutable value.
type DeleteQuery struct {
	coll  *Collection
	where expr.Expression
}

// Where narrows the delete; expressions are ANDed.
func (q DeleteQuery) Where(where ...expr.Expression) DeleteQuery {
	for _, e := range where {
		q.where = expr.Conjoin(q.where, e)
	}
	return q
}

// Operation returns the unbound operation the query describes.
func (q DeleteQuery) Operation() (queryir.Operation, error) {
	return queryir.Delete{Model: q.coll.schema, Where: q.where}, nil
}

// Execute deletes the matching records.
func (q DeleteQuery) Execute(ctx context.Context) (task.WriteResult, error) {
	op, err := q.Operation()
	if err != nil {
		return task.WriteResult{}, err
	}
	return q.coll.write(ctx, op)
}

func sameErr(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
}
