package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obsidian-innovations/goetia-sub001/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on the file name)
	Trace  bool   // print each scenario's trace
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Trace  []string `json:"trace,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioSummary holds the overall result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>...",
		Short: "Run YAML ritual scenarios",
		Long: `Run timeline scenarios against an in-memory grimoire with a manual clock.

Each scenario creates sigils, moves them through their lifecycle, advances
time, adds corruption and ticks the session, then checks its assertions.
Directories are searched recursively for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing files, etc.)`,
		Example: `  goetia scenario ./scenarios
  goetia scenario collapse.yaml --trace
  goetia scenario ./scenarios --filter "corruption_*" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print each scenario's trace")
	return cmd
}

func runScenarios(opts *ScenarioOptions, paths []string, cmd *cobra.Command) error {
	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		res := runScenarioFile(opts, file, cmd)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if opts.Format == "json" {
		return outputScenarioJSON(cmd, summary)
	}
	return outputScenarioText(opts, cmd, summary)
}

// findScenarioFiles expands path into YAML files. A file is taken as-is.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	return files, err
}

func runScenarioFile(opts *ScenarioOptions, file string, cmd *cobra.Command) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.RunWithLogger(scenario, opts.log(cmd))
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			File:   file,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	return ScenarioResult{
		Name:   scenario.Name,
		File:   file,
		Pass:   result.Pass,
		Trace:  result.Trace,
		Errors: result.Errors,
	}
}

// outputScenarioJSON writes the summary as a CLIResponse.
func outputScenarioJSON(cmd *cobra.Command, summary ScenarioSummary) error {
	response := CLIResponse{Status: "ok", Data: summary}
	if summary.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return failedScenarios(summary)
	}
	return nil
}

func outputScenarioText(opts *ScenarioOptions, cmd *cobra.Command, summary ScenarioSummary) error {
	w := cmd.OutOrStdout()

	if summary.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, s := range summary.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		if opts.Trace {
			for _, line := range s.Trace {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Scenario Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)

	if summary.Failed > 0 {
		return failedScenarios(summary)
	}
	return nil
}

// failedScenarios is returned after the summary has been written.
func failedScenarios(summary ScenarioSummary) error {
	err := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	err.Reported = true
	return err
}
