package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/query"
)

// Opener returns a fresh, empty executor able to store the given models.
// It registers its own cleanup.
type Opener func(t *testing.T, models ...*model.Schema) executor.Executor

// RunConformance checks the behavior every backend must share.
func RunConformance(t *testing.T, open Opener) {
	ctx := context.Background()

	setup := func(t *testing.T) (*query.Collection, []any) {
		t.Helper()
		fruit := Fruit()
		ex := open(t, fruit)
		c := query.NewCollection(fruit, ex, query.WithLogger(QuietLogger()))
		res, err := c.Insert(FruitItems()...).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, res.Keys, len(FruitItems()))
		return c, res.Keys
	}

	names := func(recs []*model.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.String("name")
		}
		return out
	}

	t.Run("round trip", func(t *testing.T) {
		c, keys := setup(t)
		seen := make(map[any]bool)
		for i, item := range FruitItems() {
			require.NotNil(t, keys[i])
			assert.False(t, seen[keys[i]], "keys are distinct")
			seen[keys[i]] = true

			want, err := c.Model().Make(item)
			require.NoError(t, err)
			require.NoError(t, want.Set("id", keys[i]))

			got, err := c.Get(ctx, keys[i])
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, want.Equal(got), "want %v, got %v", want.Values(), got.Values())
		}
	})

	t.Run("empty strings survive", func(t *testing.T) {
		fruit := Fruit()
		c := query.NewCollection(fruit, open(t, fruit), query.WithLogger(QuietLogger()))
		res, err := c.Insert(
			model.Values{"name": "quince", "color": ""},
			model.Values{"name": "sloe"},
		).Execute(ctx)
		require.NoError(t, err)

		quince, err := c.Get(ctx, res.Keys[0])
		require.NoError(t, err)
		require.NotNil(t, quince)
		assert.True(t, quince.IsSet("color"))
		assert.Equal(t, "", quince.Value("color"))

		sloe, err := c.Get(ctx, res.Keys[1])
		require.NoError(t, err)
		require.NotNil(t, sloe)
		assert.Nil(t, sloe.Value("color"))

		blank, err := c.Select().Where(expr.Eq(fruit.Field("color"), "")).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"quince"}, names(blank))
	})

	t.Run("fruit scenario", func(t *testing.T) {
		fruit := Fruit()
		c := query.NewCollection(fruit, open(t, fruit), query.WithLogger(QuietLogger()))
		res, err := c.Insert(model.Values{"name": "apple", "color": "red"}).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Affected)

		recs, err := c.Select().
			Where(expr.Eq(fruit.Field("color"), "red")).
			OrderBy(expr.By("name", "")).
			Execute(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "apple", recs[0].String("name"))
		assert.Equal(t, "red", recs[0].String("color"))
		assert.Equal(t, res.Keys[0], recs[0].Key())
	})

	t.Run("delete then select", func(t *testing.T) {
		c, keys := setup(t)
		pk := c.Model().Field("id")

		res, err := c.Delete(expr.Eq(pk, keys[0])).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Affected)

		recs, err := c.Select().Where(expr.Eq(pk, keys[0])).Execute(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)

		all, err := c.Select().Execute(ctx)
		require.NoError(t, err)
		assert.Len(t, all, len(keys)-1)
	})

	t.Run("idempotent update", func(t *testing.T) {
		c, _ := setup(t)
		upd := c.Update(expr.Eq(c.Model().Field("color"), "red")).Set("ripe", true).Set("weight", 3)

		snapshot := func() []model.Values {
			recs, err := c.Select().Execute(ctx)
			require.NoError(t, err)
			out := make([]model.Values, len(recs))
			for i, r := range recs {
				out[i] = r.Values()
			}
			return out
		}

		first, err := upd.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), first.Affected)
		once := snapshot()

		_, err = upd.Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, once, snapshot())

		red, err := c.Select().Where(expr.Eq(c.Model().Field("color"), "red")).Execute(ctx)
		require.NoError(t, err)
		for _, r := range red {
			assert.True(t, r.Bool("ripe"))
			assert.Equal(t, 3.0, r.Float("weight"))
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		c, keys := setup(t)
		byName := c.Select().OrderBy(expr.Asc(c.Model().Field("name")))

		none, err := byName.Limit(0).Execute(ctx)
		require.NoError(t, err)
		assert.Empty(t, none)

		past, err := byName.Offset(len(keys)).Execute(ctx)
		require.NoError(t, err)
		assert.Empty(t, past)

		page, err := byName.Offset(1).Limit(2).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"banana", "cherry"}, names(page))

		tail, err := byName.Offset(2).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"cherry", "date"}, names(tail))
	})

	t.Run("filters and ordering", func(t *testing.T) {
		c, _ := setup(t)
		f := c.Model().Field

		tests := []struct {
			name  string
			query query.SelectQuery
			want  []string
		}{
			{"descending weight", c.Select().OrderBy(expr.Desc(f("weight"))), []string{"banana", "apple", "date", "cherry"}},
			{"prefix", c.Select().Where(expr.HasPrefix(f("name"), "b")), []string{"banana"}},
			{"case sensitive", c.Select().Where(expr.HasPrefix(f("name"), "B")), []string{}},
			{"folded", c.Select().Where(expr.Contains(f("name"), "ERR").CaseInsensitive()), []string{"cherry"}},
			{"suffix", c.Select().Where(expr.HasSuffix(f("name"), "te")), []string{"date"}},
			{"literal wildcard", c.Select().Where(expr.Contains(f("name"), "%")), []string{}},
			{"or", c.Select().Where(expr.Or(expr.Eq(f("color"), "brown"), expr.Gt(f("weight"), 2))).OrderBy(expr.Asc(f("name"))), []string{"banana", "date"}},
			{"not", c.Select().Where(expr.Negate(expr.Eq(f("color"), "red"))).OrderBy(expr.Asc(f("name"))), []string{"banana", "date"}},
			{"chained where", c.Select().Where(expr.Eq(f("color"), "red")).Where(expr.Lt(f("weight"), 1)), []string{"cherry"}},
			{"bool", c.Select().Where(expr.Eq(f("ripe"), true)).OrderBy(expr.Desc(f("name"))), []string{"date", "banana"}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				recs, err := tc.query.Execute(ctx)
				require.NoError(t, err)
				assert.Equal(t, tc.want, names(recs))
			})
		}
	})

	t.Run("null values", func(t *testing.T) {
		c, _ := setup(t)
		_, err := c.Insert(model.Values{"name": "mystery"}).Execute(ctx)
		require.NoError(t, err)

		recs, err := c.Select().Where(expr.Eq(c.Model().Field("color"), nil)).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"mystery"}, names(recs))
		assert.Nil(t, recs[0].Value("color"))

		recs, err = c.Select().Where(expr.Ne(c.Model().Field("color"), "red")).OrderBy(expr.Asc(c.Model().Field("name"))).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"banana", "date"}, names(recs), "null never compares")
	})

	t.Run("projection", func(t *testing.T) {
		c, _ := setup(t)
		recs, err := c.Select(c.Model().Field("name")).OrderBy(expr.Asc(c.Model().Field("name"))).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, "apple", recs[0].String("name"))
		assert.False(t, recs[0].IsSet("color"))
	})

	t.Run("stream", func(t *testing.T) {
		c, keys := setup(t)
		stream, err := c.Select().OrderBy(expr.Asc(c.Model().Field("name"))).Stream(ctx)
		require.NoError(t, err)

		var got []string
		for rec, err := range stream.All() {
			require.NoError(t, err)
			got = append(got, rec.String("name"))
		}
		assert.Equal(t, []string{"apple", "banana", "cherry", "date"}, got)

		early, err := c.Select().Stream(ctx)
		require.NoError(t, err)
		for range early.All() {
			break
		}
		recs, err := c.Select().Execute(ctx)
		require.NoError(t, err, "abandoned stream released its revision")
		assert.Len(t, recs, len(keys))
	})

	t.Run("stream matches execute", func(t *testing.T) {
		fruit := Fruit()
		c := query.NewCollection(fruit, open(t, fruit), query.WithLogger(QuietLogger()))
		_, err := c.Insert(
			model.Values{"id": 5, "name": "elder"},
			model.Values{"id": 1, "name": "apple"},
			model.Values{"id": 3, "name": "cherry"},
		).Execute(ctx)
		require.NoError(t, err)

		for _, q := range []query.SelectQuery{
			c.Select(),
			c.Select().Limit(1),
			c.Select().Offset(1).Limit(1),
			c.Select().Where(expr.Ne(fruit.Field("name"), "cherry")),
		} {
			want, err := q.Execute(ctx)
			require.NoError(t, err)

			stream, err := q.Stream(ctx)
			require.NoError(t, err)
			var got []*model.Record
			for rec, err := range stream.All() {
				require.NoError(t, err)
				got = append(got, rec)
			}
			assert.Equal(t, names(want), names(got))
		}

		first, err := c.Select().Limit(1).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"apple"}, names(first), "key order")
	})

	t.Run("nested revision", func(t *testing.T) {
		c, _ := setup(t)
		rev, err := c.Executor().OpenRevision(ctx)
		require.NoError(t, err)
		defer rev.Rollback()

		_, err = c.Executor().OpenRevision(ctx)
		assert.True(t, errs.IsNestedRevision(err), "got %v", err)
	})

	t.Run("transaction", func(t *testing.T) {
		c, keys := setup(t)
		boom := errors.New("boom")

		err := c.Transaction(ctx, func(tx *query.Collection) error {
			if _, err := tx.Insert(model.Values{"name": "fig"}).Execute(ctx); err != nil {
				return err
			}
			inside, err := tx.Select().Execute(ctx)
			require.NoError(t, err)
			assert.Len(t, inside, len(keys)+1, "writes are visible inside the revision")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		recs, err := c.Select().Execute(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, len(keys), "rolled back")

		err = c.Transaction(ctx, func(tx *query.Collection) error {
			if _, err := tx.Insert(model.Values{"name": "fig"}).Execute(ctx); err != nil {
				return err
			}
			_, err := tx.Delete(expr.Eq(tx.Model().Field("name"), "apple")).Execute(ctx)
			return err
		})
		require.NoError(t, err)

		recs, err = c.Select().OrderBy(expr.Asc(c.Model().Field("name"))).Execute(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"banana", "cherry", "date", "fig"}, names(recs))
	})

	t.Run("uuid keys and references", func(t *testing.T) {
		fruit := Fruit()
		tag := Tag(fruit)
		ex := open(t, fruit, tag)
		fruits := query.NewCollection(fruit, ex, query.WithLogger(QuietLogger()))
		tags := query.NewCollection(tag, ex, query.WithLogger(QuietLogger()))

		fres, err := fruits.Insert(model.Values{"name": "kiwi"}).Execute(ctx)
		require.NoError(t, err)

		tres, err := tags.Insert(model.Values{
			"label": "green",
			"fruit": fres.Keys[0],
			"meta":  map[string]any{"origin": "nz", "grade": 1},
		}).Execute(ctx)
		require.NoError(t, err)
		key, ok := tres.Keys[0].(string)
		require.True(t, ok)
		_, err = uuid.Parse(key)
		require.NoError(t, err)

		got, err := tags.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, map[string]any{"origin": "nz", "grade": int64(1)}, got.Value("meta"))

		kiwi, err := fruits.Follow(ctx, got, "fruit")
		require.NoError(t, err)
		require.NotNil(t, kiwi)
		assert.Equal(t, "kiwi", kiwi.String("name"))
	})

	t.Run("builder errors before io", func(t *testing.T) {
		c, _ := setup(t)
		_, err := c.Select().Limit(-1).Execute(ctx)
		assert.True(t, errs.IsInvalidArgument(err))

		_, err = c.Select().Where(expr.Eq(expr.Field("size"), 1)).Execute(ctx)
		assert.True(t, errs.IsUnboundProperty(err))

		_, err = c.Delete(expr.And()).Execute(ctx)
		assert.True(t, errs.IsEmptyExpression(err))

		_, err = c.Insert(model.Values{"color": "red"}).Execute(ctx)
		assert.True(t, errs.IsMissingValue(err), "got %v", err)

		recs, err := c.Select().Execute(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 4, "failed queries changed nothing")
	})
}
