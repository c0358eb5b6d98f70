package backends

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/query"
	"github.com/roach88/quarry/internal/testutil"
)

func TestNewRegistry_Backends(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"bolt", "csv", "json", "postgres", "sqlite", "sqlite-pure"}, reg.Backends())

	assert.True(t, errs.IsInvalidArgument(Register(reg)), "second registration collides")
}

func TestDialect(t *testing.T) {
	for _, b := range []string{SQLite, SQLitePure, Postgres} {
		d, ok := Dialect(b)
		require.True(t, ok, b)
		assert.NotEmpty(t, d.Name)
	}
	d, _ := Dialect(SQLitePure)
	assert.Equal(t, "sqlite", d.Name)

	for _, b := range []string{JSON, CSV, Bolt} {
		_, ok := Dialect(b)
		assert.False(t, ok, b)
	}
}

func TestOpen_LocalBackends(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(WithLogger(testutil.QuietLogger()))

	tests := []struct {
		backend string
		params  func(dir string) executor.Params
	}{
		{SQLite, func(dir string) executor.Params { return executor.Params{executor.ParamPath: filepath.Join(dir, "q.db")} }},
		{SQLitePure, func(dir string) executor.Params { return executor.Params{executor.ParamDSN: filepath.Join(dir, "q.db")} }},
		{JSON, func(dir string) executor.Params { return executor.Params{executor.ParamDir: dir} }},
		{CSV, func(dir string) executor.Params { return executor.Params{executor.ParamDir: dir} }},
		{Bolt, func(dir string) executor.Params { return executor.Params{executor.ParamPath: filepath.Join(dir, "q.bolt")} }},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			ex, err := reg.Open(ctx, tc.backend, tc.params(t.TempDir()))
			require.NoError(t, err)
			defer ex.Close()
			assert.Equal(t, tc.backend, ex.Backend())

			fruit := testutil.Fruit()
			require.NoError(t, Prepare(ctx, ex, fruit))

			c := query.NewCollection(fruit, ex, query.WithLogger(testutil.QuietLogger()))
			_, err = c.Insert(testutil.FruitItems()...).Execute(ctx)
			require.NoError(t, err)

			ripe, err := c.Select().Where(expr.Eq(fruit.Field("ripe"), true)).Execute(ctx)
			require.NoError(t, err)
			assert.Len(t, ripe, 2)
		})
	}
}

func TestOpen_MissingParams(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(WithLogger(testutil.QuietLogger()))

	for _, backend := range reg.Backends() {
		t.Run(backend, func(t *testing.T) {
			_, err := reg.Open(ctx, backend, executor.Params{})
			assert.True(t, errs.IsInvalidArgument(err), "got %v", err)
		})
	}

	_, err := reg.Open(ctx, Postgres, executor.Params{executor.ParamPath: "x.db"})
	assert.True(t, errs.IsInvalidArgument(err), "postgres needs a dsn")
}
