package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bctree/internal/harness"
	"github.com/roach88/bctree/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	JournalPath string
	RunToken    string

	// Tokens overrides the run token generator (for testing). Defaults
	// to UUIDv7 tokens.
	Tokens journal.TokenGenerator
}

// RunReport is the run command's output payload.
type RunReport struct {
	Scenario string   `json:"scenario"`
	Run      string   `json:"run"`
	Events   int      `json:"events"`
	Pass     bool     `json:"pass"`
	Failures []string `json:"failures,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against a simulated process fabric",
		Long: `Run a scenario file: build the declared process fabric, execute the
scripted lifecycle steps, settle the protocol after each one, and check
the scenario's assertions.

The full protocol exchange is recorded in the journal; pass --journal to
keep it on disk for later trace and replay.

Exit codes:
  0 - Scenario passed
  1 - Assertions or invariants failed
  2 - Command error (bad scenario, bad topology)

Examples:
  bctree run ./scenarios/kill_round.yaml
  bctree run ./scenarios/kill_round.yaml --journal ./bctree.db
  bctree run ./scenarios/kill_round.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "path to the journal database (default: in-memory)")
	cmd.Flags().StringVar(&opts.RunToken, "run", "", "run token to record under (default: generated)")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sc, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	token := opts.RunToken
	if token == "" {
		gen := opts.Tokens
		if gen == nil {
			gen = journal.UUIDv7Generator{}
		}
		token = gen.Generate()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	formatter.VerboseLog("running scenario %s as %s", sc.Name, token)
	res, err := harness.Run(sc, harness.Options{
		Logger:      logger,
		JournalPath: opts.JournalPath,
		RunToken:    token,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario could not run", err)
	}

	report := RunReport{
		Scenario: res.Scenario,
		Run:      res.Run,
		Events:   len(res.Events),
		Pass:     res.Pass,
		Failures: res.Failures,
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(report); err != nil {
			return err
		}
	} else {
		printRunReport(formatter.Writer, report)
	}

	if !res.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", res.Scenario))
	}
	return nil
}

func printRunReport(w io.Writer, r RunReport) {
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (run %s, %d events)\n", mark, r.Scenario, r.Run, r.Events)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
