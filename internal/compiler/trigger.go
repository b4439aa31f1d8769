package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/correlate/internal/ir"
)

// DefaultNamespace is used for triggers and workflows that omit one.
const DefaultNamespace = "default"

// CompileTrigger parses a CUE value into a Trigger.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the trigger struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`trigger: "order-paid": { ... }`)
//	t, err := CompileTrigger(v.LookupPath(cue.ParsePath(`trigger."order-paid"`)))
//
// The trigger name is taken from the struct label. The returned trigger has
// no status and resource version 0; the store assigns the version on Put.
func CompileTrigger(v cue.Value) (*ir.Trigger, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &ir.Trigger{Namespace: DefaultNamespace}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		// The name may be quoted in CUE, extract it
		t.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	if ns, ok, err := optionalString(v, "namespace"); err != nil {
		return nil, err
	} else if ok {
		t.Namespace = ns
	}

	mode, _, err := optionalString(v, "correlation")
	if err != nil {
		return nil, err
	}
	t.Spec.Correlation = ir.CorrelationMode(mode).Normalize()

	t.Spec.Conditions, err = parseConditions(v)
	if err != nil {
		return nil, err
	}

	t.Spec.Outcome, err = parseOutcome(v, t.Namespace)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// CompileTriggers compiles every entry of the top-level "trigger" struct,
// in source order.
func CompileTriggers(v cue.Value) ([]ir.Trigger, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("trigger"))
	if !root.Exists() {
		return nil, nil
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var triggers []ir.Trigger
	for iter.Next() {
		t, err := CompileTrigger(iter.Value())
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, *t)
	}
	return triggers, nil
}

// parseConditions extracts the ordered condition list (required).
func parseConditions(v cue.Value) ([]ir.TriggerCondition, error) {
	condsVal := v.LookupPath(cue.ParsePath("conditions"))
	if !condsVal.Exists() {
		return nil, &CompileError{
			Field:   "conditions",
			Message: "conditions are required",
			Pos:     v.Pos(),
		}
	}

	list, err := condsVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "conditions",
			Message: "conditions must be a list",
			Pos:     condsVal.Pos(),
		}
	}

	var conditions []ir.TriggerCondition
	for i := 0; list.Next(); i++ {
		field := fmt.Sprintf("conditions[%d]", i)
		filtersVal := list.Value().LookupPath(cue.ParsePath("filters"))
		if !filtersVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".filters",
				Message: "condition requires 'filters' list",
				Pos:     list.Value().Pos(),
			}
		}

		filters, err := parseFilters(filtersVal, field)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, ir.TriggerCondition{Filters: filters})
	}

	return conditions, nil
}

// parseFilters extracts the filters of one condition.
func parseFilters(v cue.Value, field string) ([]ir.EventFilter, error) {
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field + ".filters",
			Message: "filters must be a list",
			Pos:     v.Pos(),
		}
	}

	var filters []ir.EventFilter
	for i := 0; list.Next(); i++ {
		fv := list.Value()
		ffield := fmt.Sprintf("%s.filters[%d]", field, i)

		attrs, err := stringMap(fv, "attributes", ffield)
		if err != nil {
			return nil, err
		}
		correlate, err := stringMap(fv, "correlate", ffield)
		if err != nil {
			return nil, err
		}
		expr, _, err := optionalString(fv, "expression")
		if err != nil {
			return nil, err
		}

		filters = append(filters, ir.EventFilter{
			Attributes: attrs,
			Expression: expr,
			Correlate:  correlate,
		})
	}
	return filters, nil
}

// parseOutcome extracts exactly one of run or resume.
func parseOutcome(v cue.Value, namespace string) (ir.Outcome, error) {
	runVal := v.LookupPath(cue.ParsePath("run"))
	resumeVal := v.LookupPath(cue.ParsePath("resume"))

	switch {
	case runVal.Exists() && resumeVal.Exists():
		return nil, &CompileError{
			Field:   "outcome",
			Message: "only one of 'run' or 'resume' may be set",
			Pos:     v.Pos(),
		}

	case runVal.Exists():
		wf := ir.WorkflowRef{Namespace: namespace}
		var err error
		if wf.Name, err = requiredString(runVal, "workflow", "run.workflow"); err != nil {
			return nil, err
		}
		if wf.Version, err = requiredString(runVal, "version", "run.version"); err != nil {
			return nil, err
		}
		if ns, ok, err := optionalString(runVal, "namespace"); err != nil {
			return nil, err
		} else if ok {
			wf.Namespace = ns
		}
		return ir.RunWorkflow{Workflow: wf}, nil

	case resumeVal.Exists():
		ref := ir.InstanceRef{Namespace: namespace}
		var err error
		if ref.Name, err = requiredString(resumeVal, "instance", "resume.instance"); err != nil {
			return nil, err
		}
		if ns, ok, err := optionalString(resumeVal, "namespace"); err != nil {
			return nil, err
		} else if ok {
			ref.Namespace = ns
		}
		return ir.ResumeWorkflow{Instance: ref}, nil

	default:
		return nil, &CompileError{
			Field:   "outcome",
			Message: "trigger requires a 'run' or 'resume' outcome",
			Pos:     v.Pos(),
		}
	}
}

// stringMap reads an optional struct of string fields.
func stringMap(v cue.Value, name, field string) (map[string]string, error) {
	mv := v.LookupPath(cue.ParsePath(name))
	if !mv.Exists() {
		return nil, nil
	}

	iter, err := mv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := make(map[string]string)
	for iter.Next() {
		key := iter.Selector().Unquoted()
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.%s.%s", field, name, key),
				Message: "value must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		out[key] = s
	}
	return out, nil
}

func optionalString(v cue.Value, name string) (string, bool, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", false, nil
	}
	s, err := sv.String()
	if err != nil {
		return "", false, &CompileError{
			Field:   name,
			Message: "must be a string",
			Pos:     sv.Pos(),
		}
	}
	return s, true, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	s, ok, err := optionalString(v, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("'%s' is required", name),
			Pos:     v.Pos(),
		}
	}
	return s, nil
}
