package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stimsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // glob on scenario file names
}

// ScenarioResult holds the result of a single scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test results.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml|dir>...",
		Short: "Run conformance scenarios against the acquisition engine",
		Long: `Run scenario files against a simulated camera and display. Each scenario
drives a fresh engine through its flow with a gated frame clock, then checks
its assertions. Sessions are saved to a temporary directory that is removed
afterwards. Directories are searched recursively for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (path not found, unreadable scenario)

Examples:
  stimsync test ./scenarios
  stimsync test ./scenarios/stop_mid_direction.yaml
  stimsync test ./scenarios --filter "camera_*"
  stimsync test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name pattern (glob)")

	return cmd
}

func runTests(opts *TestOptions, cmd *cobra.Command, paths []string) error {
	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(w, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	// Parse everything first so a broken file is a command error, not a
	// failure reported halfway through the run.
	scenarios := make([]*harness.Scenario, len(files))
	for i, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
		}
		scenarios[i] = s
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for i, file := range files {
		sr := runScenario(opts, cmd, w, file, scenarios[i])
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		if err := outputTestJSON(w, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// findScenarioFiles expands paths into a sorted list of scenario files.
// Explicit file arguments are always kept; the filter applies to files
// discovered in directories.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", p))
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			if filter != "" {
				name := strings.TrimSuffix(filepath.Base(path), ext)
				match, err := filepath.Match(filter, name)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
				if !match {
					return nil
				}
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to search scenarios", err)
		}
	}
	return files, nil
}

// runScenario executes one scenario in its own temporary output root.
func runScenario(opts *TestOptions, cmd *cobra.Command, w io.Writer, file string, scenario *harness.Scenario) ScenarioResult {
	sr := ScenarioResult{Name: scenario.Name, File: file}

	root, err := os.MkdirTemp("", "stimsync-test-*")
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("create output root: %v", err)}
		printScenario(opts, w, sr)
		return sr
	}
	defer os.RemoveAll(root)

	result, err := harness.Run(cmd.Context(), scenario, root)
	switch {
	case err != nil:
		sr.Errors = []string{err.Error()}
	case result.Pass:
		sr.Pass = true
	default:
		sr.Errors = result.Errors
	}
	printScenario(opts, w, sr)
	return sr
}

func printScenario(opts *TestOptions, w io.Writer, sr ScenarioResult) {
	if opts.Format == "json" {
		return
	}
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(w io.Writer, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(response)
}
