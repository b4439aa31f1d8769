package cli

import (
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/correlate/internal/compiler"
	"github.com/roach88/correlate/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Triggers int                        `json:"triggers"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// WriteText implements Report.
func (r ValidationResult) WriteText(w io.Writer, _ bool) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %d trigger(s) valid\n", r.Triggers)
		return
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range r.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <triggers-dir>",
		Short: "Validate trigger definitions",
		Long: `Validate CUE trigger definitions without touching a database.

Reports every problem found: CUE syntax errors, missing conditions or
outcomes, filter expressions that do not compile to bool, non-semver
workflow versions and duplicate trigger names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	p := newPrinter(opts, cmd)

	loadResult, loadErrors := LoadTriggers(dir, LoadModeCollectAll)

	// Directory not found, no files, etc.
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := ErrCodeGeneric, loadErrors[0].Error()
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		return p.fail(nil, commandError(code, fmt.Sprintf("%s: %s", code, message), nil))
	}

	p.debugf("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	validationErrors := validateLoaded(loadResult.Triggers, loadErrors, p)
	if len(validationErrors) > 0 {
		result := ValidationResult{Triggers: len(loadResult.Triggers), Errors: validationErrors}
		first := validationErrors[0]
		msg := fmt.Sprintf("validation failed with %d error(s)", len(validationErrors))
		return p.fail(result, &ExitError{Code: ExitFailure, Reason: first.Code, Message: msg})
	}

	return p.report(ValidationResult{Valid: true, Triggers: len(loadResult.Triggers)})
}

// validateLoaded merges compile errors with schema validation of the
// triggers that did compile.
func validateLoaded(triggers []ir.Trigger, loadErrors []error, p *printer) []compiler.ValidationError {
	var all []compiler.ValidationError

	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			all = append(all, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    getLineFromCuePos(loadErr.Pos),
			})
			continue
		}
		all = append(all, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric})
	}

	for _, t := range triggers {
		p.debugf("Validating trigger: %s", t.Key())
	}
	return append(all, compiler.Validate(triggers)...)
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// loadValidTriggers loads triggers fail-fast and rejects any that do not
// validate. Shared by apply and run.
func loadValidTriggers(dir string) ([]ir.Trigger, error) {
	result, loadErrors := LoadTriggers(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	if errs := compiler.Validate(result.Triggers); len(errs) > 0 {
		return nil, fmt.Errorf("invalid triggers: %w", errs[0])
	}
	return result.Triggers, nil
}

// loadErrorCode picks the failure code for an error from loadValidTriggers.
func loadErrorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ErrCodeGeneric
}
