package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/model"
	"github.com/roach88/quarry/internal/queryir"
)

type fakeRevision struct {
	*Guard
	committed  bool
	rolledBack bool
}

func (r *fakeRevision) Commit() error {
	if r.Close() {
		r.committed = true
	}
	return nil
}

func (r *fakeRevision) Rollback() error {
	if r.Close() {
		r.rolledBack = true
	}
	return nil
}

type fakeExecutor struct {
	slot Slot
	last *fakeRevision
}

func (f *fakeExecutor) Backend() string { return "fake" }
func (f *fakeExecutor) Close() error    { return nil }

func (f *fakeExecutor) Compile(op queryir.Operation) (Executable, error) { return op, nil }

func (f *fakeExecutor) OpenRevision(context.Context) (Revision, error) {
	g, err := NewGuard(&f.slot)
	if err != nil {
		return nil, err
	}
	f.last = &fakeRevision{Guard: g}
	return f.last, nil
}

func TestGuard_NestedRevision(t *testing.T) {
	ex := &fakeExecutor{}
	ctx := context.Background()

	first, err := ex.OpenRevision(ctx)
	require.NoError(t, err)

	_, err = ex.OpenRevision(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsNestedRevision(err))

	require.NoError(t, first.Commit())
	second, err := ex.OpenRevision(ctx)
	require.NoError(t, err, "slot is freed once the first revision is closed")
	require.NoError(t, second.Rollback())
}

func TestGuard_ConcurrentUse(t *testing.T) {
	g, err := NewGuard(nil)
	require.NoError(t, err)

	release, err := g.Acquire()
	require.NoError(t, err)

	_, err = g.Acquire()
	assert.True(t, errs.IsConcurrentRevisionUse(err))

	release()
	release() // idempotent

	again, err := g.Acquire()
	require.NoError(t, err)
	again()

	assert.True(t, g.Close())
	assert.False(t, g.Close())
	_, err = g.Acquire()
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestWithRevision(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		ex := &fakeExecutor{}
		require.NoError(t, WithRevision(ctx, ex, func(Revision) error { return nil }))
		assert.True(t, ex.last.committed)
		assert.Empty(t, ex.slot.Open())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		ex := &fakeExecutor{}
		boom := errors.New("boom")
		err := WithRevision(ctx, ex, func(Revision) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.True(t, ex.last.rolledBack)
		assert.False(t, ex.last.committed)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		ex := &fakeExecutor{}
		assert.Panics(t, func() {
			_ = WithRevision(ctx, ex, func(Revision) error { panic("boom") })
		})
		assert.True(t, ex.last.rolledBack)
		assert.Empty(t, ex.slot.Open())
	})

	t.Run("nested inside fn fails", func(t *testing.T) {
		ex := &fakeExecutor{}
		err := WithRevision(ctx, ex, func(Revision) error {
			_, err := ex.OpenRevision(ctx)
			return err
		})
		assert.True(t, errs.IsNestedRevision(err))
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(_ context.Context, p Params) (Executor, error) {
		if _, err := p.Require("fake", ParamPath); err != nil {
			return nil, err
		}
		return &fakeExecutor{}, nil
	}
	require.NoError(t, r.Register("fake", factory))
	assert.True(t, errs.IsInvalidArgument(r.Register("fake", factory)))
	require.NoError(t, r.Register("another", factory))
	assert.Equal(t, []string{"another", "fake"}, r.Backends())

	ex, err := r.Open(context.Background(), "fake", Params{ParamPath: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, "fake", ex.Backend())

	_, err = r.Open(context.Background(), "fake", nil)
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = r.Open(context.Background(), "missing", nil)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestSliceCursor(t *testing.T) {
	c := NewSliceCursor([]model.Row{{"a": 1}, {"a": 2}})
	assert.Nil(t, c.Row())

	var got []any
	for c.Next() {
		got = append(got, c.Row()["a"])
	}
	assert.Equal(t, []any{1, 2}, got)
	assert.NoError(t, c.Err())
	assert.False(t, c.Next())
	assert.NoError(t, c.Close())
}
