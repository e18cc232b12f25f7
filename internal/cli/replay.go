package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bctree/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Run      string // optional: verify one run only
}

// ReplayRunResult holds the verification result for a single run.
type ReplayRunResult struct {
	Run              string   `json:"run"`
	Events           int      `json:"events"`
	Messages         int      `json:"messages"`
	Ops              int      `json:"ops"`
	OpenUnsubscribes []uint64 `json:"open_unsubscribes,omitempty"`
	OpenDeaths       []uint64 `json:"open_deaths,omitempty"`
	Clean            bool     `json:"clean"`
}

// ReplayReport holds the overall replay output.
type ReplayReport struct {
	Runs     []ReplayRunResult `json:"runs"`
	AllClean bool              `json:"all_clean"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify recorded runs settle cleanly",
		Long: `Replay recorded runs and verify their protocol shape: sequence numbers
strictly increase, every unsubscribe request was answered, and every
death notice was acknowledged or mooted by a process exit.

Exit codes:
  0 - All runs are clean
  1 - Open handshakes found (the run did not settle)
  2 - Command error (database not found, corrupt log)

Examples:
  bctree replay --db ./bctree.db
  bctree replay --db ./bctree.db --run run-kill_round
  bctree replay --db ./bctree.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "verify a specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	j, err := journal.Open(opts.Database, opts.Run)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer j.Close()

	var runs []string
	if opts.Run != "" {
		runs = []string{opts.Run}
	} else {
		runs, err = j.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
	}
	if len(runs) == 0 {
		if formatter.Format == "json" {
			return formatter.JSON(ReplayReport{Runs: []ReplayRunResult{}, AllClean: true})
		}
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}

	report := ReplayReport{AllClean: true}
	for _, run := range runs {
		events, err := j.List(ctx, journal.Filter{Run: run})
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load run %s", run), err)
		}
		summary, err := journal.Verify(events)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("run %s has a corrupt log", run), err)
		}

		result := ReplayRunResult{
			Run:      run,
			Events:   summary.Events,
			Messages: summary.Messages,
			Ops:      summary.Ops,
			Clean:    len(summary.OpenUnsubscribes) == 0 && len(summary.OpenDeaths) == 0,
		}
		for _, g := range summary.OpenUnsubscribes {
			result.OpenUnsubscribes = append(result.OpenUnsubscribes, uint64(g))
		}
		for _, n := range summary.OpenDeaths {
			result.OpenDeaths = append(result.OpenDeaths, uint64(n))
		}
		if !result.Clean {
			report.AllClean = false
		}
		report.Runs = append(report.Runs, result)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		printReplayReport(formatter.Writer, report)
	}

	if !report.AllClean {
		return NewExitError(ExitFailure, "open handshakes found")
	}
	return nil
}

func printReplayReport(w io.Writer, r ReplayReport) {
	for _, run := range r.Runs {
		mark := "✓"
		if !run.Clean {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d event(s), %d message(s), %d op(s)\n", mark, run.Run, run.Events, run.Messages, run.Ops)
		if len(run.OpenUnsubscribes) > 0 {
			fmt.Fprintf(w, "    open unsubscribes: groups %v\n", run.OpenUnsubscribes)
		}
		if len(run.OpenDeaths) > 0 {
			fmt.Fprintf(w, "    open death rounds: nodes %v\n", run.OpenDeaths)
		}
	}
}
