package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/config"
	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // overrides store.path from the config file
	ConfigPath string

	cfg    *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the goetia CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "goetia",
		Short: "goetia - grimoire and ritual tooling",
		Long:  "Inspect and edit the grimoire, and exercise the hold-window, corruption and whisper rules.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := opts.config(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite grimoire (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file")

	cmd.AddCommand(NewSigilCommand(opts))
	cmd.AddCommand(NewResearchCommand(opts))
	cmd.AddCommand(NewWindowCommand(opts))
	cmd.AddCommand(NewWhisperCommand(opts))
	cmd.AddCommand(NewCorruptionCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// config loads the config file once. Subcommands built without the root
// command get the defaults.
func (o *RootOptions) config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	o.cfg = &cfg
	return cfg, nil
}

// log returns the command logger: text on stderr, Debug when verbose.
func (o *RootOptions) log(cmd *cobra.Command) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	level := slog.LevelWarn
	if cfg, err := o.config(); err == nil {
		level = cfg.Log.SlogLevel()
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return o.logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured grimoire backend. The returned func closes it.
func (o *RootOptions) openStore(cmd *cobra.Command) (*grimoire.Store, func(), error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := o.log(cmd)

	if cfg.Store.Backend == config.BackendMemory && o.Database == "" {
		logger.Debug("using in-memory grimoire")
		return grimoire.New(grimoire.NewMemoryBackend(), grimoire.WithLogger(logger)), func() {}, nil
	}

	path := cfg.Store.Path
	if o.Database != "" {
		path = o.Database
	}
	logger.Debug("opening grimoire", "path", path)
	backend, err := grimoire.OpenSQLite(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open grimoire", err)
	}
	closeFn := func() {
		if err := backend.Close(); err != nil {
			logger.Error("error closing grimoire", "error", err)
		}
	}
	return grimoire.New(backend, grimoire.WithLogger(logger)), closeFn, nil
}
