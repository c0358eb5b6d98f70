package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
)

func fruitSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("fruit",
		Prop("name", TypeString),
		Prop("color", TypeString),
		Prop("id", TypeInt, PrimaryKey()),
	)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		model string
		props []Property
	}{
		{"empty name", "", []Property{Prop("a", TypeString)}},
		{"no properties", "m", nil},
		{"unnamed property", "m", []Property{Prop("", TypeString)}},
		{"untyped property", "m", []Property{Prop("a", TypeUnknown)}},
		{"duplicate name", "m", []Property{Prop("a", TypeString), Prop("a", TypeInt)}},
		{"duplicate column", "m", []Property{Prop("a", TypeString), Prop("b", TypeInt, StorageName("a"))}},
		{"two primary keys", "m", []Property{Prop("a", TypeInt, PrimaryKey()), Prop("b", TypeInt, PrimaryKey())}},
		{"float primary key", "m", []Property{Prop("a", TypeFloat, PrimaryKey())}},
		{"bad default", "m", []Property{Prop("a", TypeInt, Default("x"))}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.model, tc.props...)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestSchema_Accessors(t *testing.T) {
	s, err := New("person",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("full_name", TypeString, StorageName("name.full")),
	)
	require.NoError(t, err)

	assert.Equal(t, "person", s.Name())
	assert.Equal(t, []string{"id", "name.full"}, s.Columns())

	pk, ok := s.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.Equal(t, "person", pk.Model)

	p, ok := s.LookupColumn("name.full")
	require.True(t, ok)
	assert.Equal(t, "full_name", p.Name)

	unknown := s.Field("nope")
	assert.Equal(t, "person", unknown.Model)
	assert.Equal(t, TypeUnknown, unknown.Type)

	_, err = s.Bind(unknown)
	assert.True(t, errs.IsUnboundProperty(err))

	bound, err := s.Bind(Property{Name: "full_name"})
	require.NoError(t, err)
	assert.Equal(t, "name.full", bound.Column())

	_, err = s.Bind(Property{Name: "id", Model: "other"})
	assert.True(t, errs.IsUnboundProperty(err))
}

func TestRecord_DefaultsAndRequire(t *testing.T) {
	s := MustNew("fruit",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("name", TypeString),
		Prop("color", TypeString, Default("green")),
	)
	r := s.New()

	assert.Nil(t, r.Value("name"))
	assert.Equal(t, "green", r.Value("color"))

	_, err := r.Require("name")
	assert.True(t, errs.IsMissingValue(err))

	v, err := r.Require("color")
	require.NoError(t, err)
	assert.Equal(t, "green", v)

	require.NoError(t, r.Set("name", "apple"))
	assert.Equal(t, "apple", r.String("name"))

	err = r.Set("weight", 3)
	assert.True(t, errs.IsUnboundProperty(err))

	err = r.Set("id", "not a number")
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestRecord_RowIncludesDefaults(t *testing.T) {
	s := MustNew("fruit",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("name", TypeString, StorageName("label")),
		Prop("color", TypeString, Default("green")),
	)
	r, err := s.Make(Values{"name": "kiwi"})
	require.NoError(t, err)

	assert.Equal(t, Row{"label": "kiwi", "color": "green"}, r.Row())
	assert.Equal(t, Values{"name": "kiwi"}, r.Values())
}

func TestCoerce(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		t    FieldType
		in   any
		want any
	}{
		{"int from int", TypeInt, 3, int64(3)},
		{"int from float", TypeInt, float64(7), int64(7)},
		{"int from json number", TypeInt, json.Number("42"), int64(42)},
		{"int from csv", TypeInt, "12", int64(12)},
		{"int from empty csv", TypeInt, "", nil},
		{"float from int64", TypeFloat, int64(2), float64(2)},
		{"float from csv", TypeFloat, "1.5", 1.5},
		{"bool from sqlite", TypeBool, int64(1), true},
		{"bool from csv", TypeBool, "false", false},
		{"string from bytes", TypeString, []byte("hi"), "hi"},
		{"uuid from value", TypeUUID, id, id.String()},
		{"uuid from string", TypeUUID, id.String(), id.String()},
		{"object from json", TypeObject, `{"a":1,"b":[2.5]}`, map[string]any{"a": int64(1), "b": []any{2.5}}},
		{"object from map", TypeObject, map[string]any{"n": float64(3)}, map[string]any{"n": int64(3)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Prop("f", tc.t).Coerce(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoerce_Rejects(t *testing.T) {
	_, err := Prop("f", TypeInt).Coerce(1.5)
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = Prop("f", TypeUUID).Coerce("nope")
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = Prop("f", TypeString).Coerce(fruitSchema(t).New())
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestFromRow(t *testing.T) {
	s := MustNew("fruit",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("name", TypeString, Required()),
		Prop("color", TypeString),
	)

	r, err := s.FromRow(Row{"id": int64(1), "name": "apple", "color": nil, "extra": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Key())
	assert.True(t, r.IsSet("color"))
	assert.Nil(t, r.Value("color"))

	r, err = s.FromRow(Row{"id": json.Number("2")})
	assert.True(t, errs.IsMissingValue(err))
	require.NotNil(t, r)
	assert.Equal(t, int64(2), r.Key())

	_, err = s.FromRow(Row{"id": "two", "name": "pear"})
	assert.True(t, errs.IsSchemaMismatch(err))
}

func TestReferences(t *testing.T) {
	owner := MustNew("owner",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("name", TypeString),
	)
	pet := MustNew("pet",
		Prop("id", TypeInt, PrimaryKey()),
		Prop("owner", TypeRef, Ref(owner)),
		Prop("snapshot", TypeRef, Ref(owner), Embed()),
	)

	o, err := owner.Make(Values{"id": 9, "name": "ada"})
	require.NoError(t, err)

	p := pet.New()
	require.NoError(t, p.Set("owner", o))
	require.NoError(t, p.Set("snapshot", o))

	assert.Equal(t, int64(9), p.Value("owner"), "references store the key")
	assert.Equal(t, map[string]any{"id": int64(9), "name": "ada"}, p.Value("snapshot"))

	require.NoError(t, p.Set("owner", "10"))
	assert.Equal(t, int64(10), p.Value("owner"))
}

func TestReferences_TargetNeedsKey(t *testing.T) {
	note := MustNew("note", Prop("text", TypeString))

	_, err := New("pin", Prop("note", TypeRef, Ref(note)))
	require.True(t, errs.IsInvalidArgument(err), "got %v", err)
	assert.Contains(t, err.Error(), "declares no primary key")

	pin, err := New("pin", Prop("note", TypeRef, Ref(note), Embed()))
	require.NoError(t, err, "embedded references carry the whole row")
	r := pin.New()
	require.NoError(t, r.Set("note", map[string]any{"text": "hi"}))
	assert.Equal(t, map[string]any{"text": "hi"}, r.Value("note"))
}

func TestRecord_EqualAndClone(t *testing.T) {
	s := fruitSchema(t)
	a, err := s.Make(Values{"id": 1, "name": "apple", "color": "red"})
	require.NoError(t, err)

	b := a.Clone()
	assert.True(t, a.Equal(b))

	require.NoError(t, b.Set("color", "green"))
	assert.False(t, a.Equal(b))
	assert.Equal(t, "red", a.String("color"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a, err := reg.Define("a", Prop("x", TypeInt))
	require.NoError(t, err)
	_, err = reg.Define("b", Prop("y", TypeString))
	require.NoError(t, err)

	_, err = reg.Define("a", Prop("z", TypeInt))
	assert.True(t, errs.IsInvalidArgument(err))

	got, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	models := reg.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "a", models[0].Name())
	assert.Equal(t, "b", models[1].Name())
}

func TestParseFieldType(t *testing.T) {
	for _, name := range []string{"string", "int", "float", "bool", "uuid", "object", "ref"} {
		ft, err := ParseFieldType(name)
		require.NoError(t, err)
		assert.Equal(t, name, ft.String())
	}
	_, err := ParseFieldType("decimal")
	assert.True(t, errs.IsInvalidArgument(err))
}
