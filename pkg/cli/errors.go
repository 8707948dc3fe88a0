package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/getmockd/restwire/pkg/cli/internal/output"
	"github.com/getmockd/restwire/pkg/resource"
)

// Common CLI errors
var (
	ErrAuthDisabled = errors.New("authorization server is not enabled - set oauth2.enabled in your configuration")
	ErrInvalid      = errors.New("configuration is invalid")
)

// hinter is implemented by errors that carry a remediation hint.
type hinter interface {
	Hint() string
}

// reportError writes err to w. With jsonOut the error is rendered as an
// ErrorResponse envelope.
func reportError(w io.Writer, err error, jsonOut bool) {
	if jsonOut {
		_ = output.JSON(w, resource.ToErrorResponse(err))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	var h hinter
	if errors.As(err, &h) && h.Hint() != "" {
		fmt.Fprintf(w, "Hint: %s\n", h.Hint())
	}
}

// Main runs the CLI and returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	root, a := newRoot()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if serr := a.shutdown(); err == nil {
		err = serr
	}
	if err != nil {
		jsonOut := a.jsonOutput()
		switch {
		case jsonOut && errors.Is(err, ErrInvalid):
			// validate already wrote its report
		case jsonOut:
			reportError(stdout, err, true)
		default:
			reportError(stderr, err, false)
		}
		return 1
	}
	return 0
}
