package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bctree/internal/topology"
)

// ValidationResult holds topology validation output.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Processes int    `json:"processes,omitempty"`
	Contexts  int    `json:"contexts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <topology.cue>",
		Short: "Validate a CUE topology file",
		Long: `Validate a CUE topology file: process roles and ordinals, context ids,
and parent-before-child declaration order.

Exit codes:
  0 - Topology is valid
  1 - Topology is invalid
  2 - Command error (file not found, unparseable CUE)

Examples:
  bctree validate ./topology.cue
  bctree validate ./topology.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	top, err := topology.Load(path)
	if err != nil {
		var compileErr *topology.CompileError
		if errors.As(err, &compileErr) {
			// The file parsed but the topology is malformed.
			if formatter.Format == "json" {
				_ = formatter.JSONError(compileErr.Error(), ValidationResult{Valid: false, Error: compileErr.Error()})
			} else {
				fmt.Fprintf(formatter.Writer, "✗ Invalid topology\n  %s\n", compileErr.Error())
			}
			return NewExitError(ExitFailure, "topology validation failed")
		}
		return WrapExitError(ExitCommandError, "failed to load topology", err)
	}

	result := ValidationResult{
		Valid:     true,
		Processes: 1 + len(top.Contents),
		Contexts:  len(top.Contexts),
	}
	formatter.VerboseLog("parent %s, %d content process(es)", top.Parent.PID, len(top.Contents))

	if formatter.Format == "json" {
		return formatter.JSON(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Topology valid: %d process(es), %d context(s)\n", result.Processes, result.Contexts)
	return nil
}
