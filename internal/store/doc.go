// Package store provides SQLite-backed storage for triggers and the
// workflow instances they start.
//
// # Triggers
//
// Each trigger row carries a resource_version. Updates are conditional on
// the version the caller read (optimistic concurrency); a mismatch returns
// an error wrapping ir.ErrConflict and leaves the row untouched. Triggers
// are listed in (namespace, name) order.
//
// # Workflow Instances
//
// Instance names are derived from the workflow reference and the
// correlation context id (see ir.InstanceName). Create inserts with
// ON CONFLICT DO NOTHING, so firing the same context twice yields the
// same instance.
//
// # Serialization
//
// Specs, statuses and correlation payloads are stored as RFC 8785
// canonical JSON, so identical state always produces identical bytes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
