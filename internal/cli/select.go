package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/errs"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	selectFlags
	Stream bool
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <model>",
		Short: "Print the records of a model",
		Long: `Select records of a model, filtered and ordered by the given flags.

Records are always ordered deterministically: after the --order terms, by
primary key. With --stream, records are printed one JSON object per line as
they are read; rows missing a required value are reported and skipped.`,
		Example: `  quarry select fruit -w color=red -o -weight --limit 10
  quarry select fruit -w 'name^=ba' -i --fields name,weight`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args[0], cmd)
		},
	}
	opts.selectFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "print records as they are read (JSON lines)")
	return cmd
}

func runSelect(opts *SelectOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.openSession(ctx)
	if err != nil {
		return f.Fail(err)
	}
	defer s.Close()

	c, err := s.collection(name)
	if err != nil {
		return f.Fail(err)
	}
	q, err := opts.build(c)
	if err != nil {
		return f.Fail(err)
	}

	if opts.Stream {
		st, err := q.Stream(ctx)
		if err != nil {
			return f.Fail(err)
		}
		enc := json.NewEncoder(f.Writer)
		skipped := 0
		for rec, err := range st.All() {
			if errs.IsMissingValue(err) {
				skipped++
				f.VerboseLog("skipping row: %v", err)
				continue
			}
			if err != nil {
				return f.Fail(err)
			}
			if err := enc.Encode(rec.Values()); err != nil {
				return err
			}
		}
		if skipped > 0 {
			fmt.Fprintf(f.GetErrWriter(), "%d row(s) skipped: missing required value\n", skipped)
		}
		return nil
	}

	recs, err := q.Execute(ctx)
	if err != nil {
		return f.Fail(err)
	}
	return f.Records(opts.columns(c.Model()), recs)
}
