package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
)

// NewResearchCommand creates the research command group. Research payloads
// are opaque JSON owned by the research subsystem; they are stored verbatim.
func NewResearchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Read and write per-entity research payloads",
	}

	cmd.AddCommand(newResearchGetCommand(rootOpts))
	cmd.AddCommand(newResearchSetCommand(rootOpts))
	return cmd
}

func newResearchGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [demon-id]",
		Short: "Print research for one entity, or list entities with research",
		Example: `  goetia research get
  goetia research get bael`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			f := opts.formatter(cmd)
			if len(args) == 0 {
				return f.Success(researchIndex(store.AllResearch(cmd.Context())))
			}
			payload, ok := store.Research(cmd.Context(), args[0])
			if !ok {
				return f.Fail(ExitFailure, ErrCodeNotFound,
					fmt.Errorf("research for %q: %w", args[0], grimoire.ErrNotFound))
			}
			return f.Success(researchPayload(payload))
		},
	}
}

func newResearchSetCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <demon-id> [json]",
		Short: "Replace the research payload for an entity",
		Example: `  goetia research set bael '{"progress":0.4}'
  goetia research set bael --file notes.json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)

			var payload []byte
			switch {
			case file != "" && len(args) == 2:
				return NewExitError(ExitCommandError, "give the payload as an argument or with --file, not both")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read payload", err)
				}
				payload = data
			case len(args) == 2:
				payload = []byte(args[1])
			default:
				return NewExitError(ExitCommandError, "missing payload")
			}

			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.SaveResearch(cmd.Context(), args[0], payload); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInvalidInput, err)
			}
			return f.Success(message(fmt.Sprintf("saved research for %s", args[0])))
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the payload from a file")
	return cmd
}

// researchPayload prints raw JSON in text mode and embeds it in JSON mode.
type researchPayload json.RawMessage

func (p researchPayload) String() string {
	return string(p) + "\n"
}

func (p researchPayload) MarshalJSON() ([]byte, error) {
	return json.RawMessage(p).MarshalJSON()
}

// researchIndex lists the entities that have research.
type researchIndex map[string]json.RawMessage

func (r researchIndex) String() string {
	if len(r) == 0 {
		return "No research recorded.\n"
	}
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, "\n") + "\n"
}
