// Package cli wires the cfncheck commands together.
package cli

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// errIssues is returned by lint when a template has error diagnostics. The
// diagnostics themselves have already been printed.
var errIssues = &ExitError{Code: 2}

func Execute() error {
	return run(NewRootCommand())
}

// run executes root and prints any error other than errIssues to its error
// stream.
func run(root *cobra.Command) error {
	if err := root.Execute(); err != nil {
		if err != errIssues {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), "error: "+strings.TrimSpace(err.Error()))
		}
		return err
	}
	return nil
}

// ExitCodeForError maps an error from Execute to an exit status: 0 for
// success, 2 when linting found errors and 1 otherwise.
func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
