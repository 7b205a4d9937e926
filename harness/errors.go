package harness

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned for tool names outside KnownTools.
var ErrUnknownTool = errors.New("unknown tool")

// ErrExecutableNotFound is wrapped by a SetupError when a tool's command
// cannot be resolved on PATH. Later runs of that tool are skipped.
var ErrExecutableNotFound = errors.New("executable not found")

// SetupError reports that the isolated environment for a tool could not
// be prepared. The tool's run is skipped.
type SetupError struct {
	Tool Tool
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: environment setup: %v", e.Tool, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// InvocationError reports a package manager command that exited non-zero
// or could not be started.
type InvocationError struct {
	Tool       Tool
	Step       string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *InvocationError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s %s exited with status %d", e.Tool, e.Step, e.ExitCode)
	}

	return fmt.Sprintf("%s %s: %v", e.Tool, e.Step, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
