package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/bctree/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
}

// ScenarioResult holds one scenario's outcome.
type ScenarioResult struct {
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Failures []string `json:"failures,omitempty"`
}

// TestReport holds the overall test command output.
type TestReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run all scenario files (*.yaml) in a directory and report a summary.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (directory not found, unrunnable scenario)

Examples:
  bctree test ./scenarios
  bctree test ./scenarios --filter "kill*"
  bctree test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	paths, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(paths) == 0 {
		if formatter.Format == "json" {
			return formatter.JSON(TestReport{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	report := TestReport{}
	for _, path := range paths {
		formatter.VerboseLog("running %s", path)
		result := runOneScenario(path, logger)
		report.Scenarios = append(report.Scenarios, result)
		report.Total++
		if result.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		printTestReport(formatter.Writer, report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}

func runOneScenario(path string, logger *slog.Logger) ScenarioResult {
	name := filepath.Base(path)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Name: name, Failures: []string{err.Error()}}
	}

	res, err := harness.Run(sc, harness.Options{Logger: logger})
	if err != nil {
		return ScenarioResult{Name: sc.Name, Failures: []string{err.Error()}}
	}
	return ScenarioResult{Name: res.Scenario, Pass: res.Pass, Failures: res.Failures}
}

func findScenarioFiles(dir, filter string) ([]string, error) {
	pattern := "*.yaml"
	if filter != "" {
		pattern = filter
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func printTestReport(w io.Writer, r TestReport) {
	for _, sc := range r.Scenarios {
		mark := "✓"
		if !sc.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, sc.Name)
		for _, f := range sc.Failures {
			fmt.Fprintf(w, "    %s\n", f)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
}
