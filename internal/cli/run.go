package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/session"
	"github.com/obsidian-innovations/goetia-sub001/internal/whisper"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Tick  time.Duration
	For   time.Duration
	Names []string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ritual loop against the grimoire",
		Long: `Run the ritual loop in real time.

Every sigil already charged in the grimoire gets its hold window back, timed
from the moment it was charged. Each tick evaluates the windows; a window that
has fully destabilised commits its sigil as spent and adds collapse corruption.
Whispers fire on the schedule set by the corruption level.

The loop stops on Ctrl-C, or after --for when set.

Example:
  goetia run --db ./goetia.db
  goetia run --tick 5s --name Bael --name Paimon --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Second, "time between ticks")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long (default: run until interrupted)")
	cmd.Flags().StringArrayVar(&opts.Names, "name", nil, "bound entity name whispers may be attributed to (repeatable)")
	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Tick <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("tick must be positive, got %s", opts.Tick))
	}
	cfg, err := opts.config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.log(cmd)

	store, closeStore, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.For > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.For)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sess := session.New(store, session.SystemClock{},
		session.WithLogger(logger),
		session.WithWhisperGenerator(whisper.NewGenerator(cfg.Whisper.Pools, whisper.DefaultSource)),
	)
	sess.Bind(opts.Names...)
	resumed := sess.Resume(ctx)
	logger.Info("ritual loop starting", "windows", resumed, "tick", opts.Tick)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Ritual loop started with %d open window(s).\n", resumed)

	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()

	for {
		report := sess.Tick(ctx)
		for _, r := range report.Readings {
			logger.Debug("window", "sigil", r.SigilID,
				"destabilisation", r.Destabilisation, "remaining", r.Remaining)
		}
		for _, id := range report.Collapsed {
			c := sess.Corruption()
			fmt.Fprintf(w, "collapse %s -> spent (corruption %.2f %s)\n", id, c.Level, c.Stage)
		}
		if report.Whisper != nil {
			fmt.Fprintf(w, "whisper: %s\n", report.Whisper)
		}

		select {
		case <-ctx.Done():
			logger.Info("ritual loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}
