// Package metrics exports task and revision counters to prometheus.
//
// A Collector implements executor.Observer; pass it to collections with
// query.WithObserver. Metrics are registered on the registerer given to
// New, never on the global default.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/quarry/internal/errs"
	"github.com/roach88/quarry/internal/executor"
	"github.com/roach88/quarry/internal/queryir"
)

// Collector records task and revision events.
type Collector struct {
	tasks     *prometheus.CounterVec
	rows      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	revisions *prometheus.CounterVec
}

var _ executor.Observer = (*Collector)(nil)

// New creates a collector and registers its metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		tasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_tasks_total",
				Help: "Tasks run, by backend, operation and result.",
			},
			[]string{"backend", "operation", "result"},
		),
		rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_task_rows_total",
				Help: "Rows read or written by tasks.",
			},
			[]string{"backend", "operation"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quarry_task_duration_seconds",
				Help:    "Task run time, including automatic revision commit.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"backend", "operation"},
		),
		revisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_revisions_total",
				Help: "Revisions closed, by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
	}
}

// TaskDone implements executor.Observer.
func (c *Collector) TaskDone(backend string, kind queryir.Kind, rows int, err error, elapsed time.Duration) {
	op := string(kind)
	c.tasks.WithLabelValues(backend, op, result(err)).Inc()
	c.rows.WithLabelValues(backend, op).Add(float64(rows))
	c.duration.WithLabelValues(backend, op).Observe(elapsed.Seconds())
}

// RevisionDone implements executor.Observer.
func (c *Collector) RevisionDone(backend string, committed bool) {
	outcome := "rollback"
	if committed {
		outcome = "commit"
	}
	c.revisions.WithLabelValues(backend, outcome).Inc()
}

// result is "ok", the lowercased error code, or "error".
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.CodeOf(err) != "":
		return strings.ToLower(string(errs.CodeOf(err)))
	default:
		return "error"
	}
}
