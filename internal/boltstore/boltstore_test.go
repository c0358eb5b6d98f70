package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/expr"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/query"
	"github.com/roach88/quarry/internal/testutil"
)

func open(t *testing.T, path string) *Executor {
	t.Helper()
	ex, err := Open(path, WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })
	return ex
}

func TestConformance(t *testing.T) {
	testutil.RunConformance(t, func(t *testing.T, _ ...*model.Schema) executor.Executor {
		return open(t, filepath.Join(t.TempDir(), "test.bolt"))
	})
}

func TestPackInt_Order(t *testing.T) {
	keys := []int64{-5, -1, 0, 1, 2, 255, 256, 1 << 40}
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytesCompare(packInt(keys[i-1]), packInt(keys[i])), "%d < %d", keys[i-1], keys[i])
	}
}

func bytesCompare(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return 0
}

func TestInsert_SequenceFollowsExplicitKeys(t *testing.T) {
	ctx := context.Background()
	c := query.NewCollection(testutil.Fruit(), open(t, filepath.Join(t.TempDir(), "db")), query.WithLogger(testutil.QuietLogger()))

	res, err := c.Insert(
		model.Values{"name": "apple"},
		model.Values{"name": "plum", "id": 40},
		model.Values{"name": "pear"},
	).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(40), int64(41)}, res.Keys)

	_, err = c.Insert(model.Values{"name": "fig", "id": 40}).Execute(ctx)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestUpdate_MovesKey(t *testing.T) {
	ctx := context.Background()
	c := query.NewCollection(testutil.Fruit(), open(t, filepath.Join(t.TempDir(), "db")), query.WithLogger(testutil.QuietLogger()))
	_, err := c.Insert(testutil.FruitItems()...).Execute(ctx)
	require.NoError(t, err)

	pk := c.Model().Field("id")
	res, err := c.Update(expr.Eq(pk, 1)).Set("id", 100).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	got, err := c.Get(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "apple", got.String("name"))

	gone, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = c.Update(expr.Eq(pk, 2)).Set("id", 3).Execute(ctx)
	assert.True(t, errs.IsInvalidArgument(err), "key collision")
}

func TestSchemaMismatch_UndeclaredColumn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")
	ex := open(t, path)

	err := ex.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucket([]byte("fruit"))
		if err != nil {
			return err
		}
		return b.Put(packInt(1), []byte(`{"name":"apple","id":1,"size":3}`))
	})
	require.NoError(t, err)

	c := query.NewCollection(testutil.Fruit(), ex, query.WithLogger(testutil.QuietLogger()))
	_, err = c.Select().Execute(ctx)
	assert.True(t, errs.IsSchemaMismatch(err), "got %v", err)

	stream, err := c.Select().Stream(ctx)
	require.NoError(t, err)
	for _, err := range stream.All() {
		assert.True(t, errs.IsSchemaMismatch(err))
	}
}

func TestRevision_Closed(t *testing.T) {
	ctx := context.Background()
	ex := open(t, filepath.Join(t.TempDir(), "db"))

	rev, err := ex.OpenRevision(ctx)
	require.NoError(t, err)
	require.NoError(t, rev.Commit())
	assert.ErrorIs(t, rev.Commit(), bolt.ErrTxClosed)
	assert.NoError(t, rev.Rollback())

	_, err = ex.Run(ctx, "nope", rev)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	ex, err := Open(path, WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	_, err = query.NewCollection(testutil.Fruit(), ex).Insert(testutil.FruitItems()...).Execute(ctx)
	require.NoError(t, err)
	require.NoError(t, ex.Close())

	recs, err := query.NewCollection(testutil.Fruit(), open(t, path)).Select().Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}
