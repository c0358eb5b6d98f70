package queryir

import (
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
)

// NoLimit marks a Select without a row limit.
const NoLimit = -1

// Kind names an operation type.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Operation is the compiled, backend-agnostic description of one statement.
//
// This is a sealed interface - only types in this package implement it.
type Operation interface {
	operationNode()

	// Schema returns the model the operation runs on.
	Schema() *model.Schema

	// Kind returns the operation type.
	Kind() Kind
}

// Select reads records.
//
// Semantics:
//
//	SELECT <fields> FROM <model> WHERE <where> ORDER BY <order_by> LIMIT <limit> OFFSET <offset>
//
// Empty Fields selects every property. Limit is NoLimit when unset.
type Select struct {
	Model   *model.Schema
	Fields  []model.Property
	Where   expr.Expression
	OrderBy []expr.Order
	Limit   int
	Offset  int
}

func (Select) operationNode()           {}
func (s Select) Schema() *model.Schema { return s.Model }
func (Select) Kind() Kind              { return KindSelect }

// Projection returns the selected properties, or every property.
func (s Select) Projection() []model.Property {
	if len(s.Fields) == 0 {
		return s.Model.Properties()
	}
	return s.Fields
}

// Insert adds records.
//
// Items are the requested field→value mappings. Rows holds the same items
// as storage rows and is filled in by Bind.
type Insert struct {
	Model *model.Schema
	Items []model.Values
	Rows  []model.Row
}

func (Insert) operationNode()           {}
func (i Insert) Schema() *model.Schema { return i.Model }
func (Insert) Kind() Kind              { return KindInsert }

// Assignment sets one property in an Update.
type Assignment struct {
	Property model.Property
	Value    any
}

// Update changes every record matching Where (all records when nil).
type Update struct {
	Model *model.Schema
	Where expr.Expression
	Set   []Assignment
}

func (Update) operationNode()           {}
func (u Update) Schema() *model.Schema { return u.Model }
func (Update) Kind() Kind              { return KindUpdate }

// Delete removes every record matching Where (all records when nil).
type Delete struct {
	Model *model.Schema
	Where expr.Expression
}

func (Delete) operationNode()           {}
func (d Delete) Schema() *model.Schema { return d.Model }
func (Delete) Kind() Kind              { return KindDelete }
