package main

import (
	"errors"
	"fmt"
	"io"

	cdderrors "cdd/internal/errors"
	"cdd/internal/report"
)

// exitError ends the process with code without printing anything more.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// handleError prints err the way the current output mode expects and
// returns the process exit code.
func handleError(err error, stdout, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	if rootOpts.json {
		_ = report.WriteJSONError(stdout, err)
		return 1
	}

	st := report.NewStyles(stderr)
	fmt.Fprintf(stderr, "%s %v\n", st.Fail.Render("Error:"), err)
	for _, fix := range cdderrors.GetSuggestedFixes(cdderrors.CodeOf(err)) {
		if fix.Command != "" {
			fmt.Fprintf(stderr, "  hint: %s (%s)\n", fix.Description, fix.Command)
		} else {
			fmt.Fprintf(stderr, "  hint: %s\n", fix.Description)
		}
	}
	return 1
}
