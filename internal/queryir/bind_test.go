package queryir

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
)

var fruit = model.MustNew("fruit",
	model.Prop("name", model.TypeString, model.Required()),
	model.Prop("color", model.TypeString, model.StorageName("colour")),
	model.Prop("id", model.TypeInt, model.PrimaryKey()),
	model.Prop("ripe", model.TypeBool, model.Default(false)),
)

var tag = model.MustNew("tag",
	model.Prop("id", model.TypeUUID, model.PrimaryKey()),
	model.Prop("label", model.TypeString),
)

func TestBind_Select(t *testing.T) {
	op := Select{
		Model:   fruit,
		Fields:  []model.Property{expr.Field("name")},
		Where:   expr.Eq(expr.Field("id"), "3"),
		OrderBy: []expr.Order{expr.Desc(expr.Field("color"))},
		Limit:   NoLimit,
	}

	bound, err := Bind(op, "sqlite")
	require.NoError(t, err)

	sel := bound.(Select)
	assert.Equal(t, "fruit", sel.Fields[0].Model)
	assert.Equal(t, int64(3), sel.Where.(expr.Comparison).Value)
	assert.Equal(t, "colour", sel.OrderBy[0].Property.Column())
	assert.Equal(t, "", op.Fields[0].Model, "input is not modified")
}

func TestBind_SelectLimits(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		offset  int
		wantErr bool
	}{
		{"no limit", NoLimit, 0, false},
		{"zero limit", 0, 0, false},
		{"offset", 2, 5, false},
		{"negative limit", -2, 0, true},
		{"negative offset", NoLimit, -1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Bind(Select{Model: fruit, Limit: tc.limit, Offset: tc.offset}, "")
			if tc.wantErr {
				assert.True(t, errs.IsInvalidArgument(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBind_Insert(t *testing.T) {
	items := []model.Values{
		{"name": "apple", "color": "red"},
		{"name": "lime", "id": "7", "ripe": true},
	}
	bound, err := Bind(Insert{Model: fruit, Items: items}, "")
	require.NoError(t, err)

	ins := bound.(Insert)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, model.Row{"name": "apple", "colour": "red", "ripe": false}, ins.Rows[0])
	assert.Equal(t, int64(7), ins.Rows[1]["id"])
	assert.NotContains(t, ins.Rows[0], "id", "int keys are left to the backend")

	_, err = Bind(Insert{Model: fruit, Items: []model.Values{{"size": 3}}}, "")
	assert.True(t, errs.IsUnboundProperty(err))

	empty, err := Bind(Insert{Model: fruit}, "")
	require.NoError(t, err)
	assert.Empty(t, empty.(Insert).Rows)
}

func TestBind_InsertRequiresValues(t *testing.T) {
	tests := []struct {
		name string
		item model.Values
	}{
		{"unset", model.Values{"color": "red"}},
		{"null", model.Values{"name": nil}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Bind(Insert{Model: fruit, Items: []model.Values{{"name": "apple"}, tc.item}}, "")
			require.True(t, errs.IsMissingValue(err), "got %v", err)
			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "name", e.Property)
		})
	}
}

func TestBind_InsertGeneratesUUIDKeys(t *testing.T) {
	items := []model.Values{{"label": "a"}}
	bound, err := Bind(Insert{Model: tag, Items: items}, "")
	require.NoError(t, err)

	key, ok := bound.(Insert).Rows[0]["id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(key)
	assert.NoError(t, err)
	assert.NotContains(t, items[0], "id", "caller's item is not modified")
}

func TestBind_Update(t *testing.T) {
	op := Update{
		Model: fruit,
		Where: expr.Eq(expr.Field("name"), "apple"),
		Set:   AssignmentsFrom(model.Values{"ripe": 1, "color": "green"}),
	}
	bound, err := Bind(op, "")
	require.NoError(t, err)

	upd := bound.(Update)
	require.Len(t, upd.Set, 2)
	assert.Equal(t, "color", upd.Set[0].Property.Name, "assignments sorted by name")
	assert.Equal(t, true, upd.Set[1].Value)

	_, err = Bind(Update{Model: fruit}, "")
	assert.True(t, errs.IsInvalidArgument(err))

	twice := []Assignment{
		{Property: expr.Field("name"), Value: "a"},
		{Property: fruit.Field("name"), Value: "b"},
	}
	_, err = Bind(Update{Model: fruit, Set: twice}, "")
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestBind_Delete(t *testing.T) {
	_, err := Bind(Delete{Model: fruit, Where: expr.Or()}, "")
	assert.True(t, errs.IsEmptyExpression(err))

	bound, err := Bind(Delete{Model: fruit}, "")
	require.NoError(t, err)
	assert.Nil(t, bound.(Delete).Where)
}

func TestBind_DeferredSeesBackend(t *testing.T) {
	var backend string
	where := expr.Defer("by-backend", func(s expr.Scope) (expr.Expression, error) {
		backend = s.Backend()
		return expr.Eq(expr.Field("name"), s.Backend()), nil
	})
	_, err := Bind(Select{Model: fruit, Where: where, Limit: NoLimit}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", backend)
}

func TestBind_RejectsMalformed(t *testing.T) {
	_, err := Bind(nil, "")
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = Bind(Select{}, "")
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestColumns(t *testing.T) {
	sel, err := Bind(Select{
		Model:   fruit,
		Fields:  []model.Property{expr.Field("name")},
		Where:   expr.And(expr.Eq(expr.Field("color"), "red"), expr.Eq(expr.Field("name"), "x")),
		OrderBy: []expr.Order{expr.Asc(expr.Field("id"))},
		Limit:   NoLimit,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "colour", "id"}, Columns(sel))

	ins, err := Bind(Insert{Model: fruit, Items: []model.Values{{"name": "a"}}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "ripe"}, Columns(ins))

	all, err := Bind(Select{Model: fruit, Limit: NoLimit}, "")
	require.NoError(t, err)
	assert.Equal(t, fruit.Columns(), Columns(all))
}
