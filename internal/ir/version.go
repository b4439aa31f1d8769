package ir

// Version constants for the persisted record schema and engine.
const (
	// SchemaVersion is the trigger/instance record schema version.
	SchemaVersion = "1"

	// EngineVersion is the correlation engine version.
	EngineVersion = "0.1.0"
)
