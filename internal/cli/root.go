package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/backends"
	"github.com/roach88/quarry/internal/config"
	"github.com/roach88/quarry/internal/executor"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
	Schema     string
	Backend    string
	Path       string
	Dir        string
	DSN        string

	// Config is the effective configuration: the file named by ConfigPath
	// overridden by explicitly set flags. It is filled before any command
	// runs.
	Config config.Config

	backends *executor.Registry
	logger   *slog.Logger
}

// NewRootCommand creates the root command for the quarry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "quarry - query models stored in SQL, document or key/value backends",
		Long: `Build and run queries against models described in a YAML or CUE schema file.

The same query runs on SQLite, Postgres, JSON or CSV documents, and bbolt
files; the backend is chosen with --backend or the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", defaults.Format, "output format (json|text)")
	pf.StringVarP(&opts.Schema, "schema", "s", defaults.Schema, "schema file (.yaml, .cue) or CUE package directory")
	pf.StringVarP(&opts.Backend, "backend", "b", defaults.Backend, "storage backend")
	pf.StringVar(&opts.Path, "path", defaults.Path, "database file (sqlite, bolt)")
	pf.StringVar(&opts.Dir, "dir", "", "document directory (json, csv)")
	pf.StringVar(&opts.DSN, "dsn", "", "driver connection string (postgres, sqlite)")

	cmd.AddCommand(NewModelsCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

// resolve builds the effective configuration and the backend registry.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return o.formatter(cmd).Fail(commandError(ErrCodeConfig, err))
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	overlay := []struct {
		flag string
		dst  *string
		src  string
	}{
		{"format", &cfg.Format, o.Format},
		{"schema", &cfg.Schema, o.Schema},
		{"backend", &cfg.Backend, o.Backend},
		{"path", &cfg.Path, o.Path},
		{"dir", &cfg.Dir, o.Dir},
		{"dsn", &cfg.DSN, o.DSN},
	}
	for _, ov := range overlay {
		if flags.Changed(ov.flag) {
			*ov.dst = ov.src
		}
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.Verbose
	}
	o.Config = cfg

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	o.backends = backends.NewRegistry(backends.WithLogger(o.logger))

	if err := cfg.Validate(o.backends.Backends()); err != nil {
		// Fall back to text so the error itself is readable.
		if cfg.Format != "json" {
			o.Config.Format = "text"
		}
		return o.formatter(cmd).Fail(commandError(ErrCodeConfig, err))
	}
	return nil
}

// formatter returns an output formatter for the effective configuration.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	format := o.Config.Format
	if format == "" {
		format = o.Format
	}
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Config.Verbose,
	}
}
