package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/filestore"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/query"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/testutil"
)

func TestCollector_TaskDone(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.TaskDone("sqlite", queryir.KindSelect, 3, nil, 2*time.Millisecond)
	c.TaskDone("sqlite", queryir.KindSelect, 0, errs.SchemaMismatch("fruit", "colour", "missing"), time.Millisecond)
	c.TaskDone("sqlite", queryir.KindDelete, 0, fmt.Errorf("wrapped: %w", errors.New("disk full")), time.Millisecond)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.tasks.WithLabelValues("sqlite", "select", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.tasks.WithLabelValues("sqlite", "select", "schema_mismatch")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.tasks.WithLabelValues("sqlite", "delete", "error")))
	assert.Equal(t, 3.0, promtest.ToFloat64(c.rows.WithLabelValues("sqlite", "select")))
	assert.Equal(t, 2, promtest.CollectAndCount(c.duration))
}

func TestCollector_RevisionDone(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RevisionDone("json", true)
	c.RevisionDone("json", true)
	c.RevisionDone("json", false)

	expected := `
# HELP quarry_revisions_total Revisions closed, by backend and outcome.
# TYPE quarry_revisions_total counter
quarry_revisions_total{backend="json",outcome="commit"} 2
quarry_revisions_total{backend="json",outcome="rollback"} 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "quarry_revisions_total"))
}

func TestCollector_OwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration")
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestCollector_ObservesCollection(t *testing.T) {
	ctx := context.Background()
	ex, err := filestore.Open(t.TempDir(), filestore.JSON, filestore.WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	defer ex.Close()

	col := New(prometheus.NewRegistry())
	c := query.NewCollection(testutil.Fruit(), ex,
		query.WithLogger(testutil.QuietLogger()),
		query.WithObserver(col),
	)

	_, err = c.Insert(testutil.FruitItems()...).Execute(ctx)
	require.NoError(t, err)
	_, err = c.Select().Execute(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.Transaction(ctx, func(tx *query.Collection) error {
		if _, err := tx.Insert(model.Values{"name": "fig"}).Execute(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2.0, promtest.ToFloat64(col.tasks.WithLabelValues("json", "insert", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(col.tasks.WithLabelValues("json", "select", "ok")))
	assert.Equal(t, 5.0, promtest.ToFloat64(col.rows.WithLabelValues("json", "insert")))
	assert.Equal(t, 4.0, promtest.ToFloat64(col.rows.WithLabelValues("json", "select")))
	assert.Equal(t, 2.0, promtest.ToFloat64(col.revisions.WithLabelValues("json", "commit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(col.revisions.WithLabelValues("json", "rollback")))
}
