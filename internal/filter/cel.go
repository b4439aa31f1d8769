package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/roach88/correlate/internal/ir"
)

// eventVar is the CEL variable holding the event under evaluation.
const eventVar = "event"

// Evaluator evaluates CEL filter expressions against events.
// Compiled programs are cached per expression; safe for concurrent use.
type Evaluator struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

// NewEvaluator creates an evaluator exposing a single "event" map with
// the keys id, type, source, subject and data.
func NewEvaluator() (*Evaluator, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(eventVar, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Check compiles expr and verifies it yields a bool, without evaluating it.
// Used to reject bad trigger definitions before they are stored.
func Check(expr string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return fmt.Errorf("expression must evaluate to bool, got %s", out)
	}
	return nil
}

// Evaluate reports whether expr holds for ev.
func (e *Evaluator) Evaluate(expr string, ev ir.Event) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{eventVar: activation(ev)})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

// program returns the cached program for expr, compiling it on first use.
func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}

// activation builds the CEL input for an event.
func activation(ev ir.Event) map[string]any {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"id":      ev.ID,
		"type":    ev.Type,
		"source":  ev.Source,
		"subject": ev.Subject,
		"data":    data,
	}
}
