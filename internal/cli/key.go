package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/consent/internal/capability"
)

// KeyResult is the canonical identity of a capability set.
type KeyResult struct {
	Capabilities []string `json:"capabilities"`
	Key          string   `json:"key"`
	Digest       string   `json:"digest"`
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "key <capability>...",
		Short: "Print the canonical key of a capability set",
		Long: `Print the canonical key and digest of a capability set.

Names are NFC-normalized, deduplicated and sorted, so every ordering of
the same set yields the same key. Requests with equal keys share one
platform request.

Examples:
  consent key CAMERA MICROPHONE
  consent key MICROPHONE CAMERA CAMERA --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(rootOpts, args, cmd)
		},
	}
}

func runKey(opts *RootOptions, names []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	set, err := capability.NewSet(names...)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidKey, err.Error(), names)
		return WrapExitError(ExitCommandError, "invalid capability set", err)
	}

	result := KeyResult{
		Capabilities: set.Names(),
		Key:          set.Key(),
		Digest:       capability.KeyDigest(set.Key()),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, result.Key)
	if opts.Verbose {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("digest:"), result.Digest)
	}
	return nil
}
