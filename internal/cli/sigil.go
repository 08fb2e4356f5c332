package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

// SigilAddOptions holds flags for sigil add.
type SigilAddOptions struct {
	*RootOptions
	ID        string
	Seal      float64
	Integrity float64
}

// NewSigilCommand creates the sigil command group.
func NewSigilCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sigil",
		Short: "Inspect and edit sigils in the grimoire",
	}

	cmd.AddCommand(newSigilListCommand(rootOpts))
	cmd.AddCommand(newSigilGetCommand(rootOpts))
	cmd.AddCommand(newSigilAddCommand(rootOpts))
	cmd.AddCommand(newSigilStatusCommand(rootOpts))
	cmd.AddCommand(newSigilDeleteCommand(rootOpts))
	cmd.AddCommand(newSigilClearCommand(rootOpts))

	return cmd
}

func newSigilListCommand(opts *RootOptions) *cobra.Command {
	var demon string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List grimoire pages and their sigils",
		Example: `  goetia sigil list
  goetia sigil list --demon bael --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			f := opts.formatter(cmd)
			if demon == "" {
				return f.Success(pageListing(store.Pages(cmd.Context())))
			}
			page, ok := store.Page(cmd.Context(), demon)
			if !ok {
				return f.Fail(ExitFailure, ErrCodeNotFound,
					fmt.Errorf("page %q: %w", demon, grimoire.ErrNotFound))
			}
			return f.Success(pageListing{page})
		},
	}

	cmd.Flags().StringVar(&demon, "demon", "", "only list this entity's page")
	return cmd
}

func newSigilGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <sigil-id>",
		Short:         "Show one sigil",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			f := opts.formatter(cmd)
			sg, err := store.SigilByID(cmd.Context(), args[0])
			if err != nil {
				return storeFailure(f, err)
			}
			return f.Success(sigilView{sg})
		},
	}
}

func newSigilAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SigilAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <demon-id>",
		Short: "Add a draft sigil to an entity's page",
		Long: `Add a draft sigil to an entity's page, creating the page if needed.

Integrity scores are in [0, 1]. The overall integrity decides the length of
the hold window once the sigil is charged.`,
		Example:       `  goetia sigil add bael --seal 0.8 --integrity 0.9`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addSigil(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "sigil id (default: generated UUIDv7)")
	cmd.Flags().Float64Var(&opts.Seal, "seal", 0, "seal integrity in [0, 1]")
	cmd.Flags().Float64Var(&opts.Integrity, "integrity", 0, "overall integrity in [0, 1]")
	return cmd
}

func addSigil(opts *SigilAddOptions, demon string, cmd *cobra.Command) error {
	store, closeStore, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	f := opts.formatter(cmd)
	sg := sigil.New(demon, opts.Seal, opts.Integrity, time.Now().UTC())
	if opts.ID != "" {
		sg.ID = opts.ID
	}
	if _, err := store.SigilByID(cmd.Context(), sg.ID); err == nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Errorf("sigil %s already exists", sg.ID))
	}
	if err := store.UpsertSigil(cmd.Context(), sg); err != nil {
		return storeFailure(f, err)
	}
	f.VerboseLog("added sigil %s to %s", sg.ID, demon)
	return f.Success(sigilView{sg})
}

func newSigilStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <demon-id> <sigil-id> <status>",
		Short: "Move a sigil along its lifecycle",
		Long: `Move a sigil to a new status.

Legal moves:
  draft    -> complete
  complete -> resting
  resting  -> awakened | complete
  awakened -> charged | spent | resting
  charged  -> spent | awakened

spent is terminal. Illegal moves exit with code 1 and leave the grimoire unchanged.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			to, err := sigil.ParseStatus(args[2])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInvalidInput, err)
			}

			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			sg, err := store.UpdateSigilStatus(cmd.Context(), args[0], args[1], to)
			if err != nil {
				return storeFailure(f, err)
			}
			return f.Success(sigilView{sg})
		},
	}
}

func newSigilDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <demon-id> <sigil-id>",
		Short:         "Remove a sigil from an entity's page",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			f := opts.formatter(cmd)
			if err := store.DeleteSigil(cmd.Context(), args[0], args[1]); err != nil {
				return storeFailure(f, err)
			}
			return f.Success(message(fmt.Sprintf("deleted sigil %s", args[1])))
		},
	}
}

func newSigilClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Erase every page and research entry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			store.ClearAll(cmd.Context())
			return opts.formatter(cmd).Success(message("grimoire cleared"))
		},
	}
}

// storeFailure maps grimoire and lifecycle errors onto output codes.
func storeFailure(f *OutputFormatter, err error) error {
	switch {
	case sigil.IsInvalidTransition(err):
		return f.Fail(ExitFailure, ErrCodeInvalidTransition, err)
	case grimoire.IsNotFound(err):
		return f.Fail(ExitFailure, ErrCodeNotFound, err)
	default:
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, err)
	}
}

// message is a plain confirmation line.
type message string

func (m message) String() string { return string(m) + "\n" }

func (m message) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"message": string(m)})
}

// sigilView renders one sigil. JSON output uses the sigil's own encoding.
type sigilView struct {
	sigil.Sigil
}

func (v sigilView) String() string {
	return sigilLine(v.Sigil) + "\n"
}

func sigilLine(sg sigil.Sigil) string {
	return fmt.Sprintf("%s  %-8s  seal=%.2f integrity=%.2f changed=%s",
		sg.ID, sg.Status, sg.SealIntegrity, sg.OverallIntegrity,
		sg.StatusChangedAt.Format(time.RFC3339))
}

// pageListing renders grimoire pages.
type pageListing []grimoire.Page

func (l pageListing) String() string {
	if len(l) == 0 {
		return "Grimoire is empty.\n"
	}
	var b strings.Builder
	for _, p := range l {
		fmt.Fprintf(&b, "%s (%d)\n", p.DemonID, len(p.Sigils))
		for _, sg := range p.Sigils {
			fmt.Fprintf(&b, "  %s\n", sigilLine(sg))
		}
	}
	return b.String()
}
