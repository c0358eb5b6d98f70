package cli

import (
	"fmt"

	"github.com/roach88/quarry/internal/task"
)

// WriteSummary is the output of insert, update and delete.
type WriteSummary struct {
	Affected int64 `json:"affected"`
	Keys     []any `json:"keys,omitempty"`
}

func (f *OutputFormatter) written(verb string, res task.WriteResult) error {
	summary := WriteSummary{Affected: res.Affected, Keys: res.Keys}
	if f.Format == "json" {
		return f.Success(summary)
	}
	fmt.Fprintf(f.Writer, "%s %d record(s)\n", verb, summary.Affected)
	if len(summary.Keys) > 0 {
		fmt.Fprintf(f.Writer, "keys: %v\n", summary.Keys)
	}
	return nil
}
