// Command consent inspects and exercises the capability request coordinator.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/consent/internal/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		// An ExitError has already been rendered in the selected format. Anything
		// else comes from cobra itself (unknown command, bad flags or args).
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(stderr, err)
		}
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
