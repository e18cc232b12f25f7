package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bctree/internal/bctx"
	"github.com/roach88/bctree/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
	PID      string
	Kind     string
	Node     uint64
	Group    uint64
	Limit    int
}

// TraceReport is the trace command's JSON payload.
type TraceReport struct {
	Run    string       `json:"run"`
	Events []TraceEvent `json:"events"`
}

// TraceEvent is one journal row in the trace output.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	PID       string `json:"pid"`
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	Node      uint64 `json:"node,omitempty"`
	Group     uint64 `json:"group,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Epoch     uint64 `json:"epoch,omitempty"`
	Name      string `json:"name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded protocol exchange for a run",
		Long: `Show the journal's view of a recorded run: every message send and
receive and every lifecycle operation, in sequence order.

Without --run, lists the runs recorded in the database.

Examples:
  bctree trace --db ./bctree.db
  bctree trace --db ./bctree.db --run run-kill_round
  bctree trace --db ./bctree.db --run run-kill_round --kind DeathNotice
  bctree trace --db ./bctree.db --run run-kill_round --node 1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to trace")
	cmd.Flags().StringVar(&opts.PID, "pid", "", "filter by process id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter by event kind")
	cmd.Flags().Uint64Var(&opts.Node, "node", 0, "filter by node id")
	cmd.Flags().Uint64Var(&opts.Group, "group", 0, "filter by group id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of events (0 = unlimited)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
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

	if opts.Run == "" {
		return listRuns(ctx, j, formatter)
	}

	events, err := j.List(ctx, journal.Filter{
		Run:   opts.Run,
		PID:   bctx.ProcessID(opts.PID),
		Kind:  opts.Kind,
		Node:  bctx.NodeID(opts.Node),
		Group: bctx.GroupID(opts.Group),
		Limit: opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query journal", err)
	}

	report := TraceReport{Run: opts.Run, Events: make([]TraceEvent, 0, len(events))}
	for _, e := range events {
		report.Events = append(report.Events, TraceEvent{
			Seq:       e.Seq,
			PID:       string(e.PID),
			Direction: e.Direction,
			Kind:      e.Kind,
			Node:      uint64(e.Node),
			Group:     uint64(e.Group),
			Peer:      string(e.Peer),
			Epoch:     e.Epoch,
			Name:      e.Name,
			Detail:    e.Detail,
		})
	}

	if formatter.Format == "json" {
		return formatter.JSON(report)
	}
	if len(report.Events) == 0 {
		fmt.Fprintf(formatter.Writer, "No events recorded for run %s.\n", opts.Run)
		return nil
	}
	for _, e := range report.Events {
		printTraceEvent(formatter.Writer, e)
	}
	return nil
}

func listRuns(ctx context.Context, j *journal.Journal, formatter *OutputFormatter) error {
	runs, err := j.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if formatter.Format == "json" {
		return formatter.JSON(map[string]any{"runs": runs})
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintln(formatter.Writer, run)
	}
	return nil
}

func printTraceEvent(w io.Writer, e TraceEvent) {
	var b strings.Builder
	fmt.Fprintf(&b, "%6d  %-8s %-4s %-22s", e.Seq, e.PID, e.Direction, e.Kind)
	if e.Node != 0 {
		fmt.Fprintf(&b, " node=%d", e.Node)
	}
	if e.Group != 0 {
		fmt.Fprintf(&b, " group=%d", e.Group)
	}
	if e.Peer != "" {
		fmt.Fprintf(&b, " peer=%s", e.Peer)
	}
	if e.Epoch != 0 {
		fmt.Fprintf(&b, " epoch=%d", e.Epoch)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " name=%q", e.Name)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " %s", e.Detail)
	}
	fmt.Fprintln(w, b.String())
}
