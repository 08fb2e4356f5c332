package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
)

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the grimoire aggregate as JSON",
		Example: `  goetia export > grimoire.json
  goetia export -o grimoire.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			raw, err := store.Export(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode grimoire", err)
			}
			var doc bytes.Buffer
			if err := json.Indent(&doc, raw, "", "  "); err != nil {
				return WrapExitError(ExitFailure, "failed to encode grimoire", err)
			}
			doc.WriteByte('\n')

			if output == "" {
				_, err := io.Copy(cmd.OutOrStdout(), &doc)
				return err
			}
			if err := os.WriteFile(output, doc.Bytes(), 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write export", err)
			}
			return opts.formatter(cmd).Success(message(fmt.Sprintf("exported grimoire to %s", output)))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the grimoire with an exported aggregate",
		Long: `Replace the whole grimoire with the aggregate in file.

Both the current object shape and the legacy bare array of pages are accepted.
The file is validated before anything is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read import", err)
			}
			data, err := grimoire.Decode(raw)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInvalidInput, err)
			}

			store, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Import(cmd.Context(), data); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInvalidInput, err)
			}

			count := 0
			for _, p := range data.Pages {
				count += len(p.Sigils)
			}
			return f.Success(message(fmt.Sprintf("imported %d page(s), %d sigil(s)", len(data.Pages), count)))
		},
	}
}
