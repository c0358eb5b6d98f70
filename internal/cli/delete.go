package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Where      []string
	All        bool
	IgnoreCase bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <model>",
		Short: "Remove the records matching every --where filter",
		Long: `Delete the records matching every --where filter.

Deleting without a filter removes every record and needs --all.`,
		Example: `  quarry delete fruit -w ripe=false
  quarry delete fruit --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "filter <field><op><value>, repeatable (ANDed)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "delete every record when no filter is given")
	cmd.Flags().BoolVarP(&opts.IgnoreCase, "ignore-case", "i", false, "case-insensitive text filters")
	return cmd
}

func runDelete(opts *DeleteOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if len(opts.Where) == 0 && !opts.All {
		return f.Fail(commandError(ErrCodeUsage, errors.New("refusing to delete every record without --all")))
	}
	where, err := parseWhere(opts.Where, opts.IgnoreCase)
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
	res, err := c.Delete(where...).Execute(ctx)
	if err != nil {
		return f.Fail(err)
	}
	return f.written("deleted", res)
}
