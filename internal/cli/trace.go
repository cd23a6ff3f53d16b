package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/consent/internal/coordinator"
	"github.com/roach88/consent/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Key      []string // optional - filter to one capability set
	Stack    string   // optional - filter to one stack id
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []journal.Entry `json:"timeline"`
	Stacks   []journal.Stack `json:"stacks"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the journal slice shown.
type TraceStats struct {
	TotalEvents     int `json:"total_events"`
	Stacks          int `json:"stacks"`
	Resolved        int `json:"resolved"`
	Outstanding     int `json:"outstanding"`
	Deliveries      int `json:"deliveries"`
	DeliveryFailure int `json:"delivery_failures"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read the coordinator event journal",
		Long: `Read coordinator events from a SQLite journal.

Shows the timeline of events in sequence order and the recorded
lifecycle of every callback stack (pending, executed, resolved).
Filter with --key to one capability set (any order) or with --stack
to one stack id.

Examples:
  consent trace --db ./consent.db
  consent trace --db ./consent.db --key CAMERA,MICROPHONE
  consent trace --db ./consent.db --stack stack-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Key, "key", nil, "filter to one capability set")
	cmd.Flags().StringVar(&opts.Stack, "stack", "", "filter to one stack id")
	cmd.MarkFlagsMutuallyExclusive("key", "stack")

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

	// Opening a missing path would create an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer j.Close()

	var entries []journal.Entry
	switch {
	case len(opts.Key) > 0:
		entries, err = j.EventsByKey(ctx, opts.Key...)
	case opts.Stack != "":
		entries, err = j.EventsByStack(ctx, opts.Stack)
	default:
		entries, err = j.Events(ctx)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	stacks, err := selectStacks(ctx, j, opts, entries)
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read stacks", err)
	}

	result := TraceResult{
		Timeline: entries,
		Stacks:   stacks,
		Stats:    buildTraceStats(entries, stacks),
	}

	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// selectStacks returns the stacks that appear in entries, or all stacks when
// no filter is set.
func selectStacks(ctx context.Context, j *journal.Journal, opts *TraceOptions, entries []journal.Entry) ([]journal.Stack, error) {
	if len(opts.Key) == 0 && opts.Stack == "" {
		return j.Stacks(ctx)
	}

	stacks := []journal.Stack{}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.StackID == "" || seen[e.StackID] {
			continue
		}
		seen[e.StackID] = true
		st, err := j.Stack(ctx, e.StackID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, st)
	}
	return stacks, nil
}

func buildTraceStats(entries []journal.Entry, stacks []journal.Stack) TraceStats {
	stats := TraceStats{TotalEvents: len(entries), Stacks: len(stacks)}
	for _, st := range stacks {
		if st.State == coordinator.StateResolved.String() {
			stats.Resolved++
		} else {
			stats.Outstanding++
		}
	}
	for _, e := range entries {
		switch e.Type {
		case coordinator.EventDelivered:
			stats.Deliveries++
		case coordinator.EventDeliveryFailed:
			stats.DeliveryFailure++
		}
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		formatTimelineEntry(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stacks ===")
	if len(result.Stacks) == 0 {
		fmt.Fprintln(w, "  (no stacks)")
	}
	for _, st := range result.Stacks {
		state := st.State
		if state == coordinator.StateResolved.String() {
			state = passStyle.Render(state)
		}
		fmt.Fprintf(w, "  %s %s %s handlers=%d code=%d\n",
			truncateID(st.ID), st.Key, state, st.Handlers, st.RequestCode)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Stacks:       %d (%d resolved, %d outstanding)\n",
		result.Stats.Stacks, result.Stats.Resolved, result.Stats.Outstanding)
	fmt.Fprintf(w, "  Deliveries:   %d (%d failed)\n", result.Stats.Deliveries, result.Stats.DeliveryFailure)

	return nil
}

// formatTimelineEntry formats a single journal entry for text output.
func formatTimelineEntry(w io.Writer, e journal.Entry, verbose bool) {
	line := fmt.Sprintf("  [%d] %s %s", e.Seq, strings.ToUpper(string(e.Type)), e.Key)
	switch e.Type {
	case coordinator.EventDelivered:
		line += fmt.Sprintf(" handler=%d/%d", e.Handler, e.Handlers)
	case coordinator.EventDeliveryFailed:
		line += fmt.Sprintf(" handler=%d/%d", e.Handler, e.Handlers)
		line = failStyle.Render(line)
	case coordinator.EventResolved, coordinator.EventUnknownResult:
		if e.Result != nil {
			line += " " + formatOutcome(e.Result)
		}
	}
	fmt.Fprintln(w, line)

	if verbose {
		if e.StackID != "" {
			fmt.Fprintf(w, "       Stack: %s\n", e.StackID)
		}
		if e.RequestCode != 0 {
			fmt.Fprintf(w, "       Code:  %d\n", e.RequestCode)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", e.Error)
		}
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
