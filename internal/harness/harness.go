package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/correlate/internal/compiler"
	"github.com/roach88/correlate/internal/engine"
	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/store"
	"github.com/roach88/correlate/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Compile and validate the scenario's CUE triggers
//  2. Store them in a fresh in-memory database
//  3. Deliver each event through engine.Process, advancing the clock first
//  4. Read back instances and trigger state
//  5. Evaluate assertions
//
// An error is returned only if the scenario could not be executed;
// failing assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	triggers, err := compileScenarioTriggers(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to compile triggers: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	for _, t := range triggers {
		if _, err := st.Triggers().Put(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to store trigger: %w", err)
		}
	}

	var ttl time.Duration
	if scenario.Options.ContextTTL != "" {
		if ttl, err = time.ParseDuration(scenario.Options.ContextTTL); err != nil {
			return nil, fmt.Errorf("invalid context_ttl: %w", err)
		}
	}

	result := NewResult()
	clock := testutil.NewManualClock()

	eng, err := engine.New(st.Triggers(), st.Instances(),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in scenarios
		engine.WithIDGenerator(testutil.NewSequenceGenerator("ctx")),
		engine.WithClock(clock.Now),
		engine.WithContextTTL(ttl),
		engine.WithConflictRetries(scenario.Options.ConflictRetries),
		engine.WithObserver(result),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	for i, step := range scenario.Events {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return nil, fmt.Errorf("events[%d].advance: %w", i, err)
			}
			clock.Advance(d)
		}

		ev := step.Event()
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if err := eng.Process(ctx, ev); err != nil {
			result.EventErrors = append(result.EventErrors, EventError{EventID: ev.ID, Error: err.Error()})
		}
	}

	if result.Instances, err = st.Instances().List(ctx); err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}
	if result.Triggers, err = st.Triggers().ListAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to read triggers: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// compileScenarioTriggers compiles inline and file CUE sources into one
// value and returns its validated triggers.
func compileScenarioTriggers(scenario *Scenario) ([]ir.Trigger, error) {
	cctx := cuecontext.New()
	value := cctx.CompileString("{}")

	if scenario.Triggers != "" {
		v := cctx.CompileString(scenario.Triggers, cue.Filename(scenario.Name+".cue"))
		if err := v.Err(); err != nil {
			return nil, err
		}
		value = value.Unify(v)
	}

	for _, path := range scenario.TriggerFiles {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		v := cctx.CompileBytes(src, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, err
		}
		value = value.Unify(v)
	}

	triggers, err := compiler.CompileTriggers(value)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("no triggers declared")
	}
	if errs := compiler.Validate(triggers); len(errs) > 0 {
		return nil, errs[0]
	}
	return triggers, nil
}
