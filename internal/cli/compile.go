package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/backends"
	"github.com/roach88/quarry/internal/query"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	selectFlags
	Delete bool
}

// CompiledStatement is one statement of the compile output.
type CompiledStatement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "Print the SQL a select (or delete) compiles to",
		Long: `Compile a query for the configured SQL backend without running it.

No database is opened; only the schema file is read. Document and key/value
backends evaluate queries in memory and have no SQL form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}
	opts.selectFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "compile a delete of the matching records")
	return cmd
}

func runCompile(opts *CompileOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	backend := opts.Config.Backend
	dialect, ok := backends.Dialect(backend)
	if !ok {
		return f.Fail(commandError(ErrCodeUsage, fmt.Errorf("backend %s has no SQL form", backend)))
	}

	s, err := opts.loadModels()
	if err != nil {
		return f.Fail(err)
	}
	m, err := s.model(name)
	if err != nil {
		return f.Fail(err)
	}
	c := query.NewCollection(m, nil, query.WithLogger(opts.logger))

	var op queryir.Operation
	if opts.Delete {
		where, werr := parseWhere(opts.Where, opts.IgnoreCase)
		if werr != nil {
			return f.Fail(commandError(ErrCodeUsage, werr))
		}
		op, err = c.Delete(where...).Operation()
	} else {
		q, qerr := opts.build(c)
		if qerr != nil {
			return f.Fail(qerr)
		}
		op, err = q.Operation()
	}
	if err != nil {
		return f.Fail(err)
	}

	bound, err := queryir.Bind(op, backend)
	if err != nil {
		return f.Fail(err)
	}
	prog, err := querysql.NewCompiler(dialect).Compile(bound)
	if err != nil {
		return f.Fail(err)
	}

	out := make([]CompiledStatement, len(prog.Statements))
	for i, st := range prog.Statements {
		out[i] = CompiledStatement{SQL: st.SQL, Args: st.Args}
		if out[i].Args == nil {
			out[i].Args = []any{}
		}
	}
	if f.Format == "json" {
		return f.Success(out)
	}
	for _, st := range out {
		fmt.Fprintln(f.Writer, st.SQL)
		if len(st.Args) > 0 {
			fmt.Fprintf(f.Writer, "-- args: %v\n", st.Args)
		}
	}
	return nil
}
