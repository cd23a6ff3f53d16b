package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/consent/internal/harness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database string // optional journal file
}

// SimulateResult is the JSON payload of the simulate command.
type SimulateResult struct {
	Scenario string          `json:"scenario"`
	Result   *harness.Result `json:"result"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run one scenario against a fresh coordinator and a scripted platform.

Prints every bind, coordinator event and platform request in sequence
order, then what each named callback received and the stacks still
registered at the end. With --db the coordinator events are also
journaled to a SQLite file that "consent trace" can read.

Exit codes:
  0 - Scenario passed
  1 - A step or assertion failed
  2 - Command error (missing file, invalid scenario, etc.)

Examples:
  consent simulate ./scenarios/join_same_key.yaml
  consent simulate ./scenarios/join_same_key.yaml --db ./consent.db
  consent simulate ./scenarios/join_same_key.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the run to this SQLite database")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.RunOption{}
	if opts.Logger != nil {
		runOpts = append(runOpts, harness.WithLogger(opts.Logger))
	}
	if opts.Database != "" {
		runOpts = append(runOpts, harness.WithJournalPath(opts.Database))
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: SimulateResult{Scenario: scenario.Name, Result: result}}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeInvalidScenario,
				Message: fmt.Sprintf("%d error(s)", len(result.Errors)),
			}
		}
		if err := encodeJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		writeSimulateText(cmd.OutOrStdout(), scenario, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func writeSimulateText(w io.Writer, scenario *harness.Scenario, result *harness.Result) {
	fmt.Fprintln(w, headerStyle.Render("Scenario: "+scenario.Name))
	fmt.Fprintln(w, mutedStyle.Render(scenario.Description))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	for _, e := range result.Trace {
		fmt.Fprintf(w, "  [%d] %s\n", e.Seq, describeTraceEvent(e))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Callbacks ===")
	if len(result.Calls) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, name := range slices.Sorted(maps.Keys(result.Calls)) {
		for _, outcome := range result.Calls[name] {
			fmt.Fprintf(w, "  %s <- %s\n", name, formatOutcome(outcome))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Registry ===")
	if len(result.Registry) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, info := range result.Registry {
		fmt.Fprintf(w, "  %s %s %s handlers=%d code=%d\n",
			info.ID, info.Key, info.State, info.Handlers, info.RequestCode)
	}
	fmt.Fprintln(w)

	if result.Pass {
		fmt.Fprintf(w, "%s %s\n", passMark(), scenario.Name)
		return
	}
	fmt.Fprintf(w, "%s %s\n", failMark(), scenario.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// describeTraceEvent renders one trace entry on a line.
func describeTraceEvent(e harness.TraceEvent) string {
	parts := []string{e.Type}
	if e.Context != "" {
		parts = append(parts, e.Context)
	}
	if e.Key != "" {
		parts = append(parts, e.Key)
	} else if len(e.Capabilities) > 0 {
		parts = append(parts, strings.Join(e.Capabilities, ","))
	}
	if e.StackID != "" {
		parts = append(parts, mutedStyle.Render(e.StackID))
	}
	if e.RequestCode != 0 {
		parts = append(parts, fmt.Sprintf("code=%d", e.RequestCode))
	}
	if e.Handler != "" {
		parts = append(parts, "-> "+e.Handler)
	}
	if e.Result != nil {
		parts = append(parts, formatOutcome(e.Result))
	}
	if e.Error != "" {
		parts = append(parts, failStyle.Render(e.Error))
	}
	return strings.Join(parts, " ")
}

// formatOutcome renders a result map with sorted names.
func formatOutcome(m map[string]bool) string {
	parts := make([]string, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, m[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
