// Package cli holds the plumbing shared by the pybench commands: process
// exit handling, logging and terminal styling.
package cli

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version is the build version (set via -ldflags).
var Version = "dev"

// Execute runs root with a context canceled on SIGINT or SIGTERM and exits
// the process with the code carried by a returned ExitError, or 1 for any
// other error.
func Execute(root *cobra.Command) {
	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	if err == nil {
		return
	}

	os.Exit(ExitCode(err))
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}

	return 1
}
