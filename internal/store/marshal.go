package store

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/roach88/correlate/internal/ir"
)

// marshalCanonical converts v to RFC 8785 canonical JSON TEXT for storage.
func marshalCanonical(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}

// marshalSpec converts a trigger spec to canonical JSON TEXT.
func marshalSpec(spec ir.TriggerSpec) (string, error) {
	s, err := marshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return s, nil
}

// marshalStatus converts a trigger status to canonical JSON TEXT.
// A nil status is stored as SQL NULL.
func marshalStatus(status *ir.TriggerStatus) (any, error) {
	if status == nil {
		return nil, nil
	}
	s, err := marshalCanonical(status)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	return s, nil
}

// unmarshalSpec parses canonical JSON TEXT to a trigger spec.
func unmarshalSpec(data string) (ir.TriggerSpec, error) {
	var spec ir.TriggerSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return ir.TriggerSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return spec, nil
}

// unmarshalStatus parses JSON TEXT to a trigger status.
// NULL and empty values yield a nil status.
func unmarshalStatus(data *string) (*ir.TriggerStatus, error) {
	if data == nil || *data == "" {
		return nil, nil
	}
	var status ir.TriggerStatus
	if err := json.Unmarshal([]byte(*data), &status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &status, nil
}
