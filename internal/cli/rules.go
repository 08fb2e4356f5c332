package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/corruption"
	"github.com/obsidian-innovations/goetia-sub001/internal/holdwindow"
	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
	"github.com/obsidian-innovations/goetia-sub001/internal/whisper"
)

// WindowOptions holds flags for the window command.
type WindowOptions struct {
	*RootOptions
	Integrity float64
	Elapsed   time.Duration
	At        string
}

// WindowReport is the state of one hold window at an instant.
type WindowReport struct {
	SigilID         string        `json:"sigilId,omitempty"`
	Integrity       float64       `json:"integrity"`
	Duration        time.Duration `json:"durationNs"`
	ChargedAt       time.Time     `json:"chargedAt"`
	End             time.Time     `json:"end"`
	CollapseAt      time.Time     `json:"collapseAt"`
	At              time.Time     `json:"at"`
	Remaining       time.Duration `json:"remainingNs"`
	Destabilisation float64       `json:"destabilisation"`
	Collapsed       bool          `json:"collapsed"`
}

func (r WindowReport) String() string {
	var b strings.Builder
	if r.SigilID != "" {
		fmt.Fprintf(&b, "sigil:           %s\n", r.SigilID)
	}
	fmt.Fprintf(&b, "integrity:       %.2f\n", r.Integrity)
	fmt.Fprintf(&b, "window:          %s\n", r.Duration)
	fmt.Fprintf(&b, "elapsed:         %s\n", r.At.Sub(r.ChargedAt))
	fmt.Fprintf(&b, "remaining:       %s\n", r.Remaining)
	fmt.Fprintf(&b, "destabilisation: %.3f\n", r.Destabilisation)
	fmt.Fprintf(&b, "collapsed:       %t\n", r.Collapsed)
	return b.String()
}

// NewWindowCommand creates the window command.
func NewWindowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WindowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "window [sigil-id]",
		Short: "Evaluate a hold window",
		Long: `Evaluate the hold window of a charged sigil, or of a hypothetical one.

With a sigil id the sigil is read from the grimoire and must be charged; the
window opened when it was charged. Without one, --integrity and --elapsed
describe the window directly.

Window length: integrity > 0.8 holds 4h, >= 0.5 holds 3h, otherwise 2h.
After the window ends destabilisation rises linearly and collapses after 1h.`,
		Example: `  goetia window --integrity 0.9 --elapsed 4h30m
  goetia window 0190a1b2-... --at 2026-01-02T15:04:05Z`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return windowForSigil(opts, args[0], cmd)
			}
			return windowHypothetical(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Integrity, "integrity", 0, "overall integrity in [0, 1]")
	cmd.Flags().DurationVar(&opts.Elapsed, "elapsed", 0, "time since the sigil was charged")
	cmd.Flags().StringVar(&opts.At, "at", "", "evaluation time, RFC 3339 (default: now)")
	return cmd
}

func windowHypothetical(opts *WindowOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if !inUnitRange(opts.Integrity) {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Errorf("integrity %v outside [0, 1]", opts.Integrity))
	}
	if opts.Elapsed < 0 {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Errorf("elapsed %s is negative", opts.Elapsed))
	}

	chargedAt := time.UnixMilli(0).UTC()
	sg := sigil.Sigil{OverallIntegrity: opts.Integrity}
	return f.Success(windowReport(holdwindow.NewWindow(sg, chargedAt), opts.Integrity, chargedAt.Add(opts.Elapsed)))
}

func windowForSigil(opts *WindowOptions, sigilID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	at := time.Now().UTC()
	if opts.At != "" {
		parsed, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Errorf("parse --at: %w", err))
		}
		at = parsed.UTC()
	}

	store, closeStore, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	sg, err := store.SigilByID(cmd.Context(), sigilID)
	if err != nil {
		return storeFailure(f, err)
	}
	if sg.Status != sigil.StatusCharged {
		return f.Fail(ExitFailure, ErrCodeInvalidInput,
			fmt.Errorf("sigil %s is %s, not charged", sg.ID, sg.Status))
	}

	report := windowReport(holdwindow.NewWindow(sg, sg.StatusChangedAt), sg.OverallIntegrity, at)
	report.SigilID = sg.ID
	return f.Success(report)
}

func windowReport(w holdwindow.Window, integrity float64, at time.Time) WindowReport {
	return WindowReport{
		Integrity:       integrity,
		Duration:        w.Duration,
		ChargedAt:       w.ChargedAt,
		End:             w.End(),
		CollapseAt:      w.CollapseAt(),
		At:              at,
		Remaining:       w.Remaining(at),
		Destabilisation: w.Destabilisation(at),
		Collapsed:       w.IsCollapsed(at),
	}
}

// WhisperOptions holds flags for the whisper command.
type WhisperOptions struct {
	*RootOptions
	Level float64
	Names []string
	Seed  uint64
	Count int
}

// WhisperReport is the scheduler's view at one corruption level.
type WhisperReport struct {
	Level     float64           `json:"level"`
	Interval  time.Duration     `json:"intervalNs"`
	Intensity whisper.Intensity `json:"intensity"`
	Whispers  []whisper.Whisper `json:"whispers"`
}

func (r WhisperReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level %.2f: every %s, %s intensity\n", r.Level, r.Interval, r.Intensity)
	for _, w := range r.Whispers {
		fmt.Fprintf(&b, "  %s\n", w)
	}
	return b.String()
}

// NewWhisperCommand creates the whisper command.
func NewWhisperCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhisperOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "whisper",
		Short: "Show whisper timing and sample messages for a corruption level",
		Example: `  goetia whisper --level 0.6
  goetia whisper --level 0.9 --name Bael --name Paimon --count 5 --seed 7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sampleWhispers(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Level, "level", 0, "corruption level in [0, 1]")
	cmd.Flags().StringArrayVar(&opts.Names, "name", nil, "bound entity name a whisper may be attributed to (repeatable)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for reproducible samples (default: random)")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of whispers to sample")
	return cmd
}

func sampleWhispers(opts *WhisperOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if !inUnitRange(opts.Level) {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Errorf("level %v outside [0, 1]", opts.Level))
	}
	if opts.Count < 0 {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Errorf("count %d is negative", opts.Count))
	}

	cfg, err := opts.config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	src := whisper.DefaultSource
	if cmd.Flags().Changed("seed") {
		src = whisper.NewSeededSource(opts.Seed)
	}
	gen := whisper.NewGenerator(cfg.Whisper.Pools, src)

	report := WhisperReport{
		Level:     opts.Level,
		Interval:  whisper.Interval(opts.Level),
		Intensity: whisper.IntensityFor(opts.Level),
		Whispers:  make([]whisper.Whisper, 0, opts.Count),
	}
	for range opts.Count {
		report.Whispers = append(report.Whispers, gen.Generate(opts.Level, opts.Names))
	}
	return f.Success(report)
}

// CorruptionOptions holds flags for the corruption command.
type CorruptionOptions struct {
	*RootOptions
	Origin string
}

// CorruptionStep is the meter after one source was added.
type CorruptionStep struct {
	Magnitude float64          `json:"magnitude"`
	Level     float64          `json:"level"`
	Stage     corruption.Stage `json:"stage"`
	Vessel    bool             `json:"vessel"`
}

// CorruptionReport walks the meter through a sequence of sources.
type CorruptionReport struct {
	Steps       []CorruptionStep `json:"steps"`
	Level       float64          `json:"level"`
	Stage       corruption.Stage `json:"stage"`
	FullyVessel bool             `json:"fullyVessel"`
}

func (r CorruptionReport) String() string {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "%+.2f -> %.2f %s\n", s.Magnitude, s.Level, s.Stage)
	}
	fmt.Fprintf(&b, "final: %.2f %s", r.Level, r.Stage)
	if r.FullyVessel {
		b.WriteString(" (fully vessel)")
	}
	b.WriteString("\n")
	return b.String()
}

// NewCorruptionCommand creates the corruption command.
func NewCorruptionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CorruptionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "corruption <magnitude>...",
		Short: "Accumulate corruption sources and show the resulting stages",
		Long: `Add each magnitude to a fresh corruption meter in order and print the level
and stage after each one.

Stages: clean < 0.25 <= tainted < 0.50 <= compromised < 0.80 <= vessel.
The level is clamped to [0, 1] and never decreases.`,
		Example:       `  goetia corruption 0.2 0.1 0.3 --origin pact`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return accumulate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", corruption.OriginRitual, "origin recorded for every source")
	return cmd
}

func accumulate(opts *CorruptionOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	state := corruption.New()
	report := CorruptionReport{Steps: make([]CorruptionStep, 0, len(args))}
	for _, arg := range args {
		mag, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Errorf("magnitude %q: %w", arg, err))
		}
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Errorf("magnitude %q is not finite", arg))
		}
		state = state.Add(corruption.Source{Magnitude: mag, Origin: opts.Origin, At: time.Now().UTC()})
		report.Steps = append(report.Steps, CorruptionStep{
			Magnitude: mag,
			Level:     state.Level,
			Stage:     state.Stage,
			Vessel:    state.IsVessel(),
		})
	}
	report.Level = state.Level
	report.Stage = state.Stage
	report.FullyVessel = state.IsFullyVessel()
	return f.Success(report)
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
