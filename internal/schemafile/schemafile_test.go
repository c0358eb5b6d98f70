package schemafile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/model"
)

func checkShop(t *testing.T, reg *model.Registry, schemas []*model.Schema) {
	t.Helper()
	require.Len(t, schemas, 2)

	fruit, ok := reg.Lookup("fruit")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "colour", "id", "weight", "ripe"}, fruit.Columns())

	pk, ok := fruit.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "id", pk.Name)
	assert.True(t, fruit.Field("name").Required)
	assert.Equal(t, 1.5, fruit.Field("weight").Default)
	assert.Equal(t, false, fruit.Field("ripe").Default)
	assert.True(t, fruit.Field("ripe").HasDefault)

	basket, ok := reg.Lookup("basket")
	require.True(t, ok)
	ref := basket.Field("fruit")
	assert.Equal(t, model.TypeRef, ref.Type)
	assert.Equal(t, "fruit", ref.Ref)
	assert.Equal(t, model.TypeInt, ref.KeyType)
}

func TestLoad_YAML(t *testing.T) {
	reg := model.NewRegistry()
	schemas, err := Load("testdata/models.yaml", reg)
	require.NoError(t, err)
	checkShop(t, reg, schemas)

	// Definition order, even though basket had to wait for fruit.
	assert.Equal(t, "basket", schemas[0].Name())
	assert.False(t, schemas[0].Field("fruit").Embed)
}

func TestLoad_CUEFile(t *testing.T) {
	reg := model.NewRegistry()
	schemas, err := Load("testdata/models.cue", reg)
	require.NoError(t, err)
	checkShop(t, reg, schemas)

	basket, _ := reg.Lookup("basket")
	assert.True(t, basket.Field("fruit").Embed)
}

func TestLoad_CUEPackage(t *testing.T) {
	reg := model.NewRegistry()
	schemas, err := Load("testdata/pkg", reg)
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	tag, ok := reg.Lookup("tag")
	require.True(t, ok)
	assert.Equal(t, model.TypeUUID, tag.Field("fruit").KeyType)
	assert.Equal(t, model.TypeObject, tag.Field("meta").Type)
	assert.Equal(t, "new", tag.Field("label").Default)
}

func TestLoad_UsesExistingModels(t *testing.T) {
	reg := model.NewRegistry()
	_, err := reg.Define("fruit", model.Prop("id", model.TypeString, model.PrimaryKey()))
	require.NoError(t, err)

	schemas, err := Build(reg, []Definition{{
		Name:       "crate",
		Properties: []PropertyDef{{Name: "fruit", Type: "ref", Ref: "fruit"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.TypeString, schemas[0].Field("fruit").KeyType)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantMsg string
		wantPos bool
	}{
		{
			name:    "unknown type",
			path:    write("type.yaml", "models:\n  - name: a\n    properties:\n      - {name: x, type: decimal}\n"),
			wantMsg: "model.a.properties[0].type",
		},
		{
			name:    "unknown yaml key",
			path:    write("key.yaml", "models:\n  - name: a\n    properties:\n      - {name: x, type: int, primary: true}\n"),
			wantMsg: "field primary not found",
		},
		{
			name:    "no models",
			path:    write("empty.yaml", ""),
			wantMsg: "no models defined",
		},
		{
			name:    "missing name",
			path:    write("noname.yaml", "models:\n  - properties: []\n"),
			wantMsg: "models[0].name",
		},
		{
			name:    "unresolved reference",
			path:    write("ref.yaml", "models:\n  - name: a\n    properties:\n      - {name: b, type: ref, ref: ghost}\n"),
			wantMsg: "unresolved or circular reference",
		},
		{
			name:    "circular reference",
			path:    write("cycle.yaml", "models:\n  - name: a\n    properties:\n      - {name: id, type: int, primary_key: true}\n      - {name: b, type: ref, ref: b}\n  - name: b\n    properties:\n      - {name: id, type: int, primary_key: true}\n      - {name: a, type: ref, ref: a}\n"),
			wantMsg: "unresolved or circular reference",
		},
		{
			name:    "ref on plain property",
			path:    write("plain.yaml", "models:\n  - name: a\n    properties:\n      - {name: b, type: int, ref: a}\n"),
			wantMsg: "only ref properties name a target",
		},
		{
			name:    "two primary keys",
			path:    write("pk.yaml", "models:\n  - name: a\n    properties:\n      - {name: x, type: int, primary_key: true}\n      - {name: y, type: int, primary_key: true}\n"),
			wantMsg: "model.a",
		},
		{
			name:    "cue syntax",
			path:    write("bad.cue", "model: fruit: properties: [\n"),
			wantPos: true,
		},
		{
			name:    "cue unknown field",
			path:    write("field.cue", "model: a: properties: [{name: \"x\", type: \"int\", colour: \"red\"}]\n"),
			wantMsg: "unknown property field",
			wantPos: true,
		},
		{
			name:    "cue missing properties",
			path:    write("props.cue", "model: a: {}\n"),
			wantMsg: "properties are required",
		},
		{
			name:    "unsupported extension",
			path:    write("models.toml", ""),
			wantMsg: "unsupported extension",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path, model.NewRegistry())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
			if tc.wantPos {
				var se *Error
				require.True(t, errors.As(err, &se), "got %T", err)
				assert.True(t, se.Pos.IsValid())
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml", model.NewRegistry())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
