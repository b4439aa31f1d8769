package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInstance = "correlate/instance/v1"
)

// instanceHashLen is the number of hex characters kept in instance names.
const instanceHashLen = 12

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON marshals v and rewrites it to RFC 8785 canonical form.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(data)
}

// InstanceName computes the deterministic name of the workflow instance
// started for a correlation context.
//
// The same (workflow, context) pair always yields the same name, so a
// repeated fire of a context that was not released (crash between create
// and persist) collides at the instance repository instead of starting a
// second run.
func InstanceName(wf WorkflowRef, contextID string) (string, error) {
	canonical, err := canonicalJSON(map[string]string{
		"context":   contextID,
		"namespace": wf.Namespace,
		"version":   wf.Version,
		"workflow":  wf.Name,
	})
	if err != nil {
		return "", fmt.Errorf("InstanceName: failed to marshal: %w", err)
	}

	sum := hashWithDomain(DomainInstance, canonical)
	return fmt.Sprintf("%s-%s", wf.Name, sum[:instanceHashLen]), nil
}

// MustInstanceName is like InstanceName but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInstanceName(wf WorkflowRef, contextID string) string {
	name, err := InstanceName(wf, contextID)
	if err != nil {
		panic(err)
	}
	return name
}
