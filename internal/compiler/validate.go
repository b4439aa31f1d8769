package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/correlate/internal/filter"
	"github.com/roach88/correlate/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Trigger identity errors (E101-E104)
	ErrInvalidName      = "E101" // name or namespace is not a DNS label
	ErrDuplicateTrigger = "E102" // same namespace/name declared twice

	// Condition and filter errors (E110-E119)
	ErrNoConditions      = "E110" // at least one condition required
	ErrNoFilters         = "E111" // condition must have filters
	ErrEmptyFilter       = "E112" // filter has neither attributes nor expression
	ErrInvalidExpression = "E113" // CEL expression does not compile to bool
	ErrInvalidCorrelate  = "E114" // empty correlation key or attribute
	ErrInvalidMode       = "E115" // unknown correlation mode

	// Outcome errors (E120-E129)
	ErrMissingOutcome  = "E120" // outcome is required
	ErrInvalidWorkflow = "E121" // workflow reference incomplete
	ErrInvalidVersion  = "E122" // workflow version is not semver
	ErrInvalidInstance = "E123" // resume instance reference incomplete
)

// dnsLabel matches RFC 1123 labels, the form namespaces and names take.
var dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled triggers against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Trigger and []Trigger.
func Validate(v any) []ValidationError {
	switch t := v.(type) {
	case *ir.Trigger:
		return validateTrigger(t)
	case ir.Trigger:
		return validateTrigger(&t)
	case []ir.Trigger:
		return validateTriggers(t)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// validateTriggers validates each trigger and rejects duplicate keys.
// Fields are prefixed with the trigger key.
func validateTriggers(triggers []ir.Trigger) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i := range triggers {
		key := triggers[i].Key()
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   key,
				Message: fmt.Sprintf("duplicate trigger %q", key),
				Code:    ErrDuplicateTrigger,
			})
		}
		seen[key] = true

		for _, e := range validateTrigger(&triggers[i]) {
			e.Field = key + ": " + e.Field
			errs = append(errs, e)
		}
	}
	return errs
}

// validateTrigger validates a single trigger definition.
func validateTrigger(t *ir.Trigger) []ValidationError {
	var errs []ValidationError

	// E101: identity
	if !dnsLabel.MatchString(t.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid trigger name %q, must be a lowercase DNS label", t.Name),
			Code:    ErrInvalidName,
		})
	}
	if !dnsLabel.MatchString(t.Namespace) {
		errs = append(errs, ValidationError{
			Field:   "namespace",
			Message: fmt.Sprintf("invalid namespace %q, must be a lowercase DNS label", t.Namespace),
			Code:    ErrInvalidName,
		})
	}

	// E115: correlation mode
	if !t.Spec.Correlation.Valid() {
		errs = append(errs, ValidationError{
			Field:   "correlation",
			Message: fmt.Sprintf("invalid correlation mode %q, must be \"exclusive\" or \"parallel\"", t.Spec.Correlation),
			Code:    ErrInvalidMode,
		})
	}

	// E110: at least one condition
	if len(t.Spec.Conditions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "conditions",
			Message: "at least one condition is required",
			Code:    ErrNoConditions,
		})
	}

	for i, cond := range t.Spec.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)

		// E111: condition must have filters
		if len(cond.Filters) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".filters",
				Message: "condition must have at least one filter",
				Code:    ErrNoFilters,
			})
		}

		for j, f := range cond.Filters {
			errs = append(errs, validateFilter(f, fmt.Sprintf("%s.filters[%d]", field, j))...)
		}
	}

	errs = append(errs, validateOutcome(t.Spec.Outcome)...)

	return errs
}

// validateFilter validates predicates and correlation mapping of one filter.
func validateFilter(f ir.EventFilter, field string) []ValidationError {
	var errs []ValidationError

	// E112: a filter without predicates would match every event
	if len(f.Attributes) == 0 && strings.TrimSpace(f.Expression) == "" {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "filter must declare attributes or an expression",
			Code:    ErrEmptyFilter,
		})
	}

	// E113: expression must compile to bool
	if strings.TrimSpace(f.Expression) != "" {
		if err := filter.Check(f.Expression); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".expression",
				Message: err.Error(),
				Code:    ErrInvalidExpression,
			})
		}
	}

	// E114: correlation keys and attributes must be non-empty
	for _, key := range sortedKeys(f.Correlate) {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(f.Correlate[key]) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".correlate." + key,
				Message: "correlation key and attribute must be non-empty",
				Code:    ErrInvalidCorrelate,
			})
		}
	}

	return errs
}

// validateOutcome validates the outcome variant.
func validateOutcome(o ir.Outcome) []ValidationError {
	var errs []ValidationError

	switch out := o.(type) {
	case nil:
		// E120: outcome is required
		errs = append(errs, ValidationError{
			Field:   "outcome",
			Message: "outcome is required",
			Code:    ErrMissingOutcome,
		})

	case ir.RunWorkflow:
		wf := out.Workflow
		// E121: workflow reference
		if wf.Name == "" || wf.Namespace == "" {
			errs = append(errs, ValidationError{
				Field:   "run.workflow",
				Message: "workflow name and namespace are required",
				Code:    ErrInvalidWorkflow,
			})
		}
		// E122: semver
		if _, err := semver.StrictNewVersion(wf.Version); err != nil {
			errs = append(errs, ValidationError{
				Field:   "run.version",
				Message: fmt.Sprintf("invalid workflow version %q: %v", wf.Version, err),
				Code:    ErrInvalidVersion,
			})
		}

	case ir.ResumeWorkflow:
		// E123: instance reference
		if out.Instance.Name == "" || out.Instance.Namespace == "" {
			errs = append(errs, ValidationError{
				Field:   "resume.instance",
				Message: "instance name and namespace are required",
				Code:    ErrInvalidInstance,
			})
		}
	}

	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
