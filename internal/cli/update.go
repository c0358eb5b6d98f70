package cli

import (
	"github.com/spf13/cobra"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Where      []string
	Set        []string
	IgnoreCase bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "update <model>",
		Short:   "Change the records matching every --where filter",
		Example: `  quarry update fruit -w color=yellow --set ripe=true`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "filter <field><op><value>, repeatable (ANDed)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "new value <field>=<value>, repeatable")
	cmd.Flags().BoolVarP(&opts.IgnoreCase, "ignore-case", "i", false, "case-insensitive text filters")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func runUpdate(opts *UpdateOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	where, err := parseWhere(opts.Where, opts.IgnoreCase)
	if err != nil {
		return f.Fail(commandError(ErrCodeUsage, err))
	}
	values, err := parseAssignments(opts.Set)
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
	res, err := c.Update(where...).SetValues(values).Execute(ctx)
	if err != nil {
		return f.Fail(err)
	}
	return f.written("updated", res)
}
