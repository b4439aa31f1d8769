package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation or scenario failure, engine error
	ExitCommandError = 2 // Command error (invalid paths, unreadable database, etc.)
)

// Command failure codes. E0xx are load errors (loader.go) and E1xx are
// trigger validation errors (compiler package).
const (
	ErrCodeApplyFailed    = "E201" // Trigger upsert rejected by the store
	ErrCodeEventSource    = "E202" // Event source could not be opened
	ErrCodeEngineConfig   = "E203" // Engine options rejected
	ErrCodeEngineFailed   = "E204" // Engine stopped with an error
	ErrCodeScenarioFailed = "E210" // One or more scenarios failed
)

// ExitError is a command failure. Code is the process exit code and
// Reason the failure code reported in JSON output.
type ExitError struct {
	Code    int
	Reason  string
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// commandError reports bad input: missing paths, unreadable databases,
// unusable event sources. Exits with ExitCommandError.
func commandError(reason, message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Reason: reason, Message: message, Err: err}
}

// failure reports a command that ran but did not succeed. Exits with
// ExitFailure.
func failure(reason, message string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Reason: reason, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope every command writes with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command in a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report is a command result. JSON output embeds the report as the
// response data; text output lets it render itself.
type Report interface {
	WriteText(w io.Writer, verbose bool)
}

// printer writes command reports in the selected format. Diagnostics go
// to stderr so they never interleave with JSON on stdout.
type printer struct {
	json    bool
	verbose bool
	out     io.Writer
	diag    io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *printer {
	return &printer{
		json:    opts.Format == "json",
		verbose: opts.Verbose,
		out:     cmd.OutOrStdout(),
		diag:    cmd.ErrOrStderr(),
	}
}

// report writes a successful result.
func (p *printer) report(r Report) error {
	if p.json {
		return p.encode(Response{Status: "ok", Data: r})
	}
	r.WriteText(p.out, p.verbose)
	return nil
}

// fail writes r, which may be nil, alongside the failure and returns
// failErr for the command to return. Text output leaves the message to
// main, which prints returned errors to stderr.
func (p *printer) fail(r Report, failErr *ExitError) error {
	if p.json {
		resp := Response{
			Status: "error",
			Error:  &ResponseError{Code: failErr.Reason, Message: failErr.Error()},
		}
		if r != nil {
			resp.Data = r
		}
		if err := p.encode(resp); err != nil {
			return err
		}
		return failErr
	}
	if r != nil {
		r.WriteText(p.out, p.verbose)
	}
	return failErr
}

// debugf writes a diagnostic line when --verbose is set.
func (p *printer) debugf(format string, args ...any) {
	if p.verbose {
		fmt.Fprintf(p.diag, format+"\n", args...)
	}
}

func (p *printer) encode(resp Response) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
