package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/quarry/internal/errs"
)

// Revision is one open unit of work.
type Revision interface {
	// ID identifies the revision in logs and errors.
	ID() string

	// Acquire marks the revision as used by one task. It fails with
	// CONCURRENT_REVISION_USE while another task holds it. release must be
	// called when the task is done.
	Acquire() (release func(), err error)

	// Commit makes the revision's writes durable and closes it.
	Commit() error

	// Rollback discards the revision's writes and closes it. Rolling back a
	// closed revision is a no-op.
	Rollback() error
}

// Guard carries the bookkeeping shared by all revision implementations.
// Backends embed a *Guard in their revision type.
type Guard struct {
	id     string
	busy   atomic.Bool
	closed atomic.Bool
	slot   *Slot
}

// NewGuard creates a guard with a fresh id, registered in slot. It fails
// with NESTED_REVISION if slot already holds an open revision.
func NewGuard(slot *Slot) (*Guard, error) {
	g := &Guard{id: uuid.NewString(), slot: slot}
	if slot != nil {
		if err := slot.claim(g.id); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ID returns the revision id.
func (g *Guard) ID() string {
	return g.id
}

// Acquire implements Revision.Acquire.
func (g *Guard) Acquire() (func(), error) {
	if g.closed.Load() {
		return nil, errs.InvalidArgument("revision %s is closed", g.id)
	}
	if !g.busy.CompareAndSwap(false, true) {
		return nil, errs.ConcurrentRevisionUse(g.id)
	}
	var once sync.Once
	return func() { once.Do(func() { g.busy.Store(false) }) }, nil
}

// Close marks the revision closed and frees its slot. It reports whether
// this call closed it; later calls return false.
func (g *Guard) Close() bool {
	if !g.closed.CompareAndSwap(false, true) {
		return false
	}
	if g.slot != nil {
		g.slot.release(g.id)
	}
	return true
}

// Closed reports whether the revision was committed or rolled back.
func (g *Guard) Closed() bool {
	return g.closed.Load()
}

// Slot tracks the single open revision of one connection or executor.
type Slot struct {
	mu   sync.Mutex
	open string
}

func (s *Slot) claim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != "" {
		return errs.NestedRevision(s.open)
	}
	s.open = id
	return nil
}

func (s *Slot) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == id {
		s.open = ""
	}
}

// Open returns the id of the open revision, or "".
func (s *Slot) Open() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// WithRevision opens a revision on ex, runs fn inside it and commits.
// The revision is rolled back if fn returns an error or panics.
func WithRevision(ctx context.Context, ex Executor, fn func(Revision) error) (err error) {
	rev, err := ex.OpenRevision(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = rev.Rollback()
			panic(p)
		}
		if err != nil {
			_ = rev.Rollback() // No-op if committed
		}
	}()

	if err = fn(rev); err != nil {
		return err
	}
	if err = rev.Commit(); err != nil {
		return fmt.Errorf("commit revision %s: %w", rev.ID(), err)
	}
	return nil
}
