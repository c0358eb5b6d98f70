package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

var fruit = model.MustNew("fruit",
	model.Prop("id", model.TypeInt, model.PrimaryKey()),
	model.Prop("name", model.TypeString, model.Required()),
)

type memRevision struct {
	*executor.Guard
	committed, rolledBack bool
}

func (r *memRevision) Commit() error {
	if r.Close() {
		r.committed = true
	}
	return nil
}

func (r *memRevision) Rollback() error {
	if r.Close() {
		r.rolledBack = true
	}
	return nil
}

type trackingCursor struct {
	*executor.SliceCursor
	closed bool
}

func (c *trackingCursor) Close() error {
	c.closed = true
	return c.SliceCursor.Close()
}

type memExecutor struct {
	rows   []model.Row
	runErr error
	slot   executor.Slot
	revs   []*memRevision
	cursor *trackingCursor
}

func (m *memExecutor) Backend() string { return "mem" }
func (m *memExecutor) Close() error    { return nil }

func (m *memExecutor) Compile(op queryir.Operation) (executor.Executable, error) { return op, nil }

func (m *memExecutor) OpenRevision(context.Context) (executor.Revision, error) {
	g, err := executor.NewGuard(&m.slot)
	if err != nil {
		return nil, err
	}
	rev := &memRevision{Guard: g}
	m.revs = append(m.revs, rev)
	return rev, nil
}

func (m *memExecutor) Run(_ context.Context, exe executor.Executable, _ executor.Revision) (*executor.Result, error) {
	if m.runErr != nil {
		return nil, m.runErr
	}
	if exe.(queryir.Operation).Kind() == queryir.KindSelect {
		return &executor.Result{Rows: m.rows}, nil
	}
	return &executor.Result{Affected: 2, Keys: []any{int64(1), int64(2)}}, nil
}

func (m *memExecutor) Stream(context.Context, executor.Executable, executor.Revision) (executor.Cursor, error) {
	if m.runErr != nil {
		return nil, m.runErr
	}
	m.cursor = &trackingCursor{SliceCursor: executor.NewSliceCursor(m.rows)}
	return m.cursor, nil
}

type recordingObserver struct {
	tasks     []int
	committed []bool
}

func (o *recordingObserver) TaskDone(_ string, _ queryir.Kind, rows int, _ error, _ time.Duration) {
	o.tasks = append(o.tasks, rows)
}

func (o *recordingObserver) RevisionDone(_ string, committed bool) {
	o.committed = append(o.committed, committed)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func selectAll() queryir.Operation {
	return queryir.Select{Model: fruit, Limit: queryir.NoLimit}
}

func threeRows() []model.Row {
	return []model.Row{
		{"id": int64(1), "name": "apple"},
		{"id": int64(2), "name": nil},
		{"id": int64(3), "name": "cherry"},
	}
}

func TestSelectTask_Records(t *testing.T) {
	ex := &memExecutor{rows: []model.Row{{"id": int64(1), "name": "apple"}}}
	obs := &recordingObserver{}

	st, err := NewSelect(ex, selectAll(), selectAll(), quiet(), WithObserver(obs))
	require.NoError(t, err)
	assert.True(t, st.Reads())
	assert.False(t, st.Writes())

	recs, err := st.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "apple", recs[0].String("name"))

	require.Len(t, ex.revs, 1)
	assert.True(t, ex.revs[0].committed, "automatic revision committed")
	assert.Equal(t, []bool{true}, obs.committed)
	assert.Equal(t, []int{1}, obs.tasks)

	_, err = st.Records(context.Background())
	assert.True(t, errs.IsInvalidArgument(err), "a task runs once")
}

func TestSelectTask_FirstRowErrorAborts(t *testing.T) {
	ex := &memExecutor{rows: threeRows()}
	st, err := NewSelect(ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)

	_, err = st.Records(context.Background())
	assert.True(t, errs.IsMissingValue(err))
}

func TestSimpleTask_RollsBackOnError(t *testing.T) {
	boom := errors.New("disk on fire")
	ex := &memExecutor{runErr: boom}
	obs := &recordingObserver{}

	st := NewSimple(ex, selectAll(), selectAll(), quiet(), WithObserver(obs))
	_, err := st.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ex.revs[0].rolledBack)
	assert.Equal(t, []bool{false}, obs.committed)
	assert.Empty(t, ex.slot.Open())
}

func TestWriteTask(t *testing.T) {
	ex := &memExecutor{}
	del := queryir.Delete{Model: fruit}

	_, err := NewWrite(ex, selectAll(), selectAll())
	assert.True(t, errs.IsInvalidArgument(err))

	wt, err := NewWrite(ex, del, del, quiet())
	require.NoError(t, err)
	assert.True(t, wt.Writes())

	res, err := wt.Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)
	assert.Equal(t, []any{int64(1), int64(2)}, res.Keys)
}

func TestExplicitRevision(t *testing.T) {
	ex := &memExecutor{rows: threeRows()[:1]}
	ctx := context.Background()

	rev, err := ex.OpenRevision(ctx)
	require.NoError(t, err)

	st, err := NewSelect(ex, selectAll(), selectAll(), quiet(), InRevision(rev))
	require.NoError(t, err)
	_, err = st.Records(ctx)
	require.NoError(t, err)
	assert.False(t, ex.revs[0].committed, "explicit revision is left open")

	auto, err := NewSelect(ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)
	_, err = auto.Records(ctx)
	assert.True(t, errs.IsNestedRevision(err), "automatic revision nests inside the open one")

	require.NoError(t, rev.Commit())
}

func TestConcurrentTasksOnOneRevision(t *testing.T) {
	ex := &memExecutor{rows: threeRows()[:1]}
	ctx := context.Background()
	rev, err := ex.OpenRevision(ctx)
	require.NoError(t, err)
	defer rev.Rollback()

	stream, err := NewStream(ctx, ex, selectAll(), selectAll(), quiet(), InRevision(rev))
	require.NoError(t, err)
	require.True(t, stream.Next())

	st, err := NewSelect(ex, selectAll(), selectAll(), quiet(), InRevision(rev))
	require.NoError(t, err)
	_, err = st.Records(ctx)
	assert.True(t, errs.IsConcurrentRevisionUse(err))

	require.NoError(t, stream.Close())
	st2, err := NewSelect(ex, selectAll(), selectAll(), quiet(), InRevision(rev))
	require.NoError(t, err)
	_, err = st2.Records(ctx)
	assert.NoError(t, err)
}

func TestStreamTask_YieldsRowErrorsAndContinues(t *testing.T) {
	ex := &memExecutor{rows: threeRows()}
	stream, err := NewStream(context.Background(), ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)
	assert.Nil(t, ex.cursor, "nothing opened before iteration")

	var names []string
	var rowErrs int
	for rec, err := range stream.All() {
		if err != nil {
			assert.True(t, errs.IsMissingValue(err))
			rowErrs++
			continue
		}
		names = append(names, rec.String("name"))
	}
	assert.Equal(t, []string{"apple", "cherry"}, names)
	assert.Equal(t, 1, rowErrs)
	assert.NoError(t, stream.Err())
	assert.True(t, ex.cursor.closed)
	assert.True(t, ex.revs[0].committed)
	assert.False(t, stream.Next(), "not restartable")
}

func TestStreamTask_EarlyBreakReleases(t *testing.T) {
	ex := &memExecutor{rows: threeRows()}
	obs := &recordingObserver{}
	stream, err := NewStream(context.Background(), ex, selectAll(), selectAll(), quiet(), WithObserver(obs))
	require.NoError(t, err)

	for range stream.All() {
		break
	}
	assert.True(t, ex.cursor.closed)
	assert.True(t, ex.revs[0].rolledBack)
	assert.Empty(t, ex.slot.Open())
	assert.Equal(t, []int{1}, obs.tasks)
}

func TestStreamTask_OpenError(t *testing.T) {
	boom := errors.New("boom")
	ex := &memExecutor{runErr: boom}
	stream, err := NewStream(context.Background(), ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)

	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), boom)
	assert.True(t, ex.revs[0].rolledBack)
}

func TestStreamTask_Cancelled(t *testing.T) {
	ex := &memExecutor{rows: threeRows()}
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewStream(ctx, ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)

	require.True(t, stream.Next())
	cancel()
	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), context.Canceled)
	assert.True(t, ex.cursor.closed)
}

func TestStreamTask_CloseBeforeStart(t *testing.T) {
	ex := &memExecutor{rows: threeRows()}
	stream, err := NewStream(context.Background(), ex, selectAll(), selectAll(), quiet())
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.False(t, stream.Next())
	assert.Empty(t, ex.revs)

	_, err = NewStream(context.Background(), ex, queryir.Delete{Model: fruit}, nil)
	assert.True(t, errs.IsInvalidArgument(err))
}
