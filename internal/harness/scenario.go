package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/correlate/internal/engine"
	"github.com/roach88/correlate/internal/ir"
)

// Scenario defines a correlation test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Triggers is inline CUE source declaring trigger: <name>: {...}.
	Triggers string `yaml:"triggers,omitempty"`

	// TriggerFiles lists CUE files declaring triggers.
	// Paths are relative to the scenario file location.
	TriggerFiles []string `yaml:"trigger_files,omitempty"`

	// Options configures the engine under test.
	Options Options `yaml:"options,omitempty"`

	// Events are delivered to the engine in order, one cycle each.
	Events []EventStep `yaml:"events"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Options configures the engine for a scenario.
type Options struct {
	// ContextTTL expires contexts idle longer than this (Go duration).
	ContextTTL string `yaml:"context_ttl,omitempty"`

	// ConflictRetries is the number of retries after a version conflict.
	ConflictRetries int `yaml:"conflict_retries,omitempty"`
}

// EventStep is one event delivered to the engine.
type EventStep struct {
	ID      string         `yaml:"id"`
	Type    string         `yaml:"type"`
	Source  string         `yaml:"source"`
	Subject string         `yaml:"subject,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"`

	// Advance moves the scenario clock forward before delivery (Go duration).
	Advance string `yaml:"advance,omitempty"`
}

// Event converts the step to the event delivered to the engine.
func (s EventStep) Event() ir.Event {
	return ir.Event{
		ID:      s.ID,
		Type:    s.Type,
		Source:  s.Source,
		Subject: s.Subject,
		Data:    s.Data,
	}
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "transition_count": Kind appears exactly Count times (optionally for Trigger)
	// - "transition_order": Kinds appear in this relative order
	// - "instance_count": Exactly Count instances were started (optionally of Workflow)
	// - "instance_keys": Some instance was started from a context bound to Keys
	// - "open_contexts": Trigger holds exactly Count open contexts at the end
	// - "event_errors": Exactly Count events failed processing
	Type string `yaml:"type"`

	// Kind is the transition kind (used by transition_count).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected transition order (used by transition_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Trigger is a namespace/name key (transition_count, open_contexts).
	Trigger string `yaml:"trigger,omitempty"`

	// Workflow is a workflow name (instance_count, instance_keys).
	Workflow string `yaml:"workflow,omitempty"`

	// Keys are the expected correlation keys (used by instance_keys).
	// Subset match - only specified keys are validated.
	Keys map[string]string `yaml:"keys,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTransitionCount = "transition_count"
	AssertTransitionOrder = "transition_order"
	AssertInstanceCount   = "instance_count"
	AssertInstanceKeys    = "instance_keys"
	AssertOpenContexts    = "open_contexts"
	AssertEventErrors     = "event_errors"
)

var validKinds = map[string]bool{
	string(engine.TransitionMatched):            true,
	string(engine.TransitionContextCreated):     true,
	string(engine.TransitionConditionSatisfied): true,
	string(engine.TransitionExclusiveConflict):  true,
	string(engine.TransitionFired):              true,
	string(engine.TransitionOutcomeRejected):    true,
	string(engine.TransitionExpired):            true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Trigger file paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.TriggerFiles {
		if !filepath.IsAbs(p) {
			scenario.TriggerFiles[i] = filepath.Join(base, p)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Triggers == "" && len(s.TriggerFiles) == 0 {
		return fmt.Errorf("triggers or trigger_files is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}
	if s.Options.ConflictRetries < 0 {
		return fmt.Errorf("options.conflict_retries must be non-negative")
	}
	if s.Options.ContextTTL != "" {
		if _, err := time.ParseDuration(s.Options.ContextTTL); err != nil {
			return fmt.Errorf("options.context_ttl: %w", err)
		}
	}

	for i, ev := range s.Events {
		if err := ev.Event().Validate(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		if ev.Advance != "" {
			if _, err := time.ParseDuration(ev.Advance); err != nil {
				return fmt.Errorf("events[%d].advance: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertTransitionCount:
		if !validKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown transition kind %q", index, a.Kind)
		}
	case AssertTransitionOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for transition_order", index)
		}
		for _, k := range a.Kinds {
			if !validKinds[k] {
				return fmt.Errorf("assertions[%d]: unknown transition kind %q", index, k)
			}
		}
	case AssertInstanceCount, AssertEventErrors:
	case AssertInstanceKeys:
		if len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: keys are required for instance_keys", index)
		}
	case AssertOpenContexts:
		if a.Trigger == "" {
			return fmt.Errorf("assertions[%d]: trigger is required for open_contexts", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
