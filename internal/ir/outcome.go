package ir

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind names an outcome variant.
type OutcomeKind string

const (
	OutcomeRun    OutcomeKind = "run"
	OutcomeResume OutcomeKind = "resume"
)

// Outcome is the action performed when a trigger's conditions are all
// satisfied. The set of variants is closed: RunWorkflow and ResumeWorkflow.
type Outcome interface {
	Kind() OutcomeKind
	sealed()
}

// RunWorkflow starts a new instance of a workflow.
type RunWorkflow struct {
	Workflow WorkflowRef `json:"workflow"`
}

// Kind implements Outcome.
func (RunWorkflow) Kind() OutcomeKind { return OutcomeRun }
func (RunWorkflow) sealed()           {}

// ResumeWorkflow resumes a suspended workflow instance.
// The engine recognizes it but does not support it yet.
type ResumeWorkflow struct {
	Instance InstanceRef `json:"instance"`
}

// Kind implements Outcome.
func (ResumeWorkflow) Kind() OutcomeKind { return OutcomeResume }
func (ResumeWorkflow) sealed()           {}

// TriggerSpec is the user-authored part of a trigger.
type TriggerSpec struct {
	Conditions  []TriggerCondition
	Correlation CorrelationMode
	Outcome     Outcome
}

// triggerSpecJSON is the wire form of TriggerSpec. The outcome is encoded
// as a tagged object with exactly one variant field set.
type triggerSpecJSON struct {
	Conditions  []TriggerCondition `json:"conditions"`
	Correlation CorrelationMode    `json:"correlation"`
	Outcome     outcomeJSON        `json:"outcome"`
}

type outcomeJSON struct {
	Run    *RunWorkflow    `json:"run,omitempty"`
	Resume *ResumeWorkflow `json:"resume,omitempty"`
}

// MarshalJSON encodes the outcome as {"run":{...}} or {"resume":{...}}.
func (s TriggerSpec) MarshalJSON() ([]byte, error) {
	out := triggerSpecJSON{
		Conditions:  s.Conditions,
		Correlation: s.Correlation,
	}

	switch o := s.Outcome.(type) {
	case RunWorkflow:
		out.Outcome.Run = &o
	case ResumeWorkflow:
		out.Outcome.Resume = &o
	case nil:
		// No outcome: encoded as an empty object.
	default:
		return nil, fmt.Errorf("marshal trigger spec: unknown outcome type %T", o)
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged outcome form written by MarshalJSON.
func (s *TriggerSpec) UnmarshalJSON(data []byte) error {
	var in triggerSpecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal trigger spec: %w", err)
	}

	s.Conditions = in.Conditions
	s.Correlation = in.Correlation

	switch {
	case in.Outcome.Run != nil && in.Outcome.Resume != nil:
		return fmt.Errorf("unmarshal trigger spec: outcome must set exactly one of run or resume")
	case in.Outcome.Run != nil:
		s.Outcome = *in.Outcome.Run
	case in.Outcome.Resume != nil:
		s.Outcome = *in.Outcome.Resume
	default:
		s.Outcome = nil
	}

	return nil
}
