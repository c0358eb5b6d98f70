package executor

import (
	"time"

	"github.com/roach88/quarry/internal/queryir"
)

// Observer receives task and revision events, for instrumentation.
type Observer interface {
	// TaskDone is called once per finished task with the number of rows
	// read or written and the task's error.
	TaskDone(backend string, kind queryir.Kind, rows int, err error, elapsed time.Duration)

	// RevisionDone is called when a revision is committed or rolled back.
	RevisionDone(backend string, committed bool)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) TaskDone(string, queryir.Kind, int, error, time.Duration) {}
func (NopObserver) RevisionDone(string, bool)                                {}
