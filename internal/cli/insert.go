package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/model"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Set  []string
	JSON string
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <model>",
		Short: "Add records to a model",
		Long: `Insert one record built from --set terms, or the records of --json (an
object or an array of objects keyed by property name).

All records are written in one revision: either all are stored or none.`,
		Example: `  quarry insert fruit --set name=apple --set color=red --set weight=2
  quarry insert fruit --json '[{"name":"kiwi"},{"name":"lime","ripe":true}]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "property value <field>=<value>, repeatable")
	cmd.Flags().StringVar(&opts.JSON, "json", "", "records as a JSON object or array")
	cmd.MarkFlagsMutuallyExclusive("set", "json")
	cmd.MarkFlagsOneRequired("set", "json")
	return cmd
}

func runInsert(opts *InsertOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	items, err := opts.items()
	if err != nil {
		return f.Fail(commandError(ErrCodeUsage, err))
	}

	s, err := opts.openSession(ctx)
	if err != nil {
		return f.Fail(err)
	}
	defer s.Close()

	c, err := s.collection(name)
	if err != nil {
		return f.Fail(err)
	}
	res, err := c.Insert(items...).Execute(ctx)
	if err != nil {
		return f.Fail(err)
	}
	return f.written("inserted", res)
}

func (o *InsertOptions) items() ([]model.Values, error) {
	if o.JSON == "" {
		v, err := parseAssignments(o.Set)
		if err != nil {
			return nil, err
		}
		return []model.Values{v}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(o.JSON)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing --json: %w", err)
	}
	switch x := raw.(type) {
	case map[string]any:
		return []model.Values{x}, nil
	case []any:
		items := make([]model.Values, len(x))
		for i, el := range x {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parsing --json: element %d is not an object", i)
			}
			items[i] = obj
		}
		return items, nil
	}
	return nil, errors.New("parsing --json: expected an object or an array of objects")
}
