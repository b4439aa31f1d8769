package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/correlate/internal/ir"
)

// Triggers is the SQLite-backed trigger repository.
type Triggers struct {
	db *sql.DB
}

// Put inserts or replaces a trigger's spec.
//
// A new trigger starts at resource_version 1 with no status. Replacing an
// existing trigger keeps its status and bumps the version, so a concurrent
// engine update based on the old spec fails with a conflict.
func (r *Triggers) Put(ctx context.Context, t ir.Trigger) (ir.Trigger, error) {
	spec, err := marshalSpec(t.Spec)
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("put trigger %s: %w", t.Key(), err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO triggers (namespace, name, resource_version, spec)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(namespace, name) DO UPDATE SET
			spec = excluded.spec,
			resource_version = triggers.resource_version + 1,
			updated_at = CURRENT_TIMESTAMP
	`, t.Namespace, t.Name, spec)
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("put trigger %s: %w", t.Key(), err)
	}

	return r.Get(ctx, t.Namespace, t.Name)
}

// Get reads a single trigger.
// Returns an error wrapping ir.ErrNotFound if it does not exist.
func (r *Triggers) Get(ctx context.Context, namespace, name string) (ir.Trigger, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT namespace, name, resource_version, spec, status
		FROM triggers
		WHERE namespace = ? AND name = ?
	`, namespace, name)

	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Trigger{}, fmt.Errorf("get trigger %s/%s: %w", namespace, name, ir.ErrNotFound)
	}
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("get trigger %s/%s: %w", namespace, name, err)
	}
	return t, nil
}

// ListAll returns every trigger ordered by (namespace, name).
func (r *Triggers) ListAll(ctx context.Context) ([]ir.Trigger, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT namespace, name, resource_version, spec, status
		FROM triggers
		ORDER BY namespace ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []ir.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("list triggers: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return triggers, nil
}

// Update persists t.Status if the stored resource_version still equals
// t.ResourceVersion. Spec is owned by Put and is not written here.
//
// Returns the stored trigger with its new version on success, an error
// wrapping ir.ErrConflict on a version mismatch, and an error wrapping
// ir.ErrNotFound if the trigger was deleted.
func (r *Triggers) Update(ctx context.Context, t ir.Trigger) (ir.Trigger, error) {
	status, err := marshalStatus(t.Status)
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", t.Key(), err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: begin: %w", t.Key(), err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		UPDATE triggers
		SET status = ?, resource_version = resource_version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE namespace = ? AND name = ? AND resource_version = ?
	`, status, t.Namespace, t.Name, t.ResourceVersion)
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", t.Key(), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: rows affected: %w", t.Key(), err)
	}

	if n == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `
			SELECT resource_version FROM triggers WHERE namespace = ? AND name = ?
		`, t.Namespace, t.Name).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", t.Key(), ir.ErrNotFound)
		}
		if err != nil {
			return ir.Trigger{}, fmt.Errorf("update trigger %s: %w", t.Key(), err)
		}
		return ir.Trigger{}, fmt.Errorf("update trigger %s: stored version %d, have %d: %w",
			t.Key(), current, t.ResourceVersion, ir.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return ir.Trigger{}, fmt.Errorf("update trigger %s: commit: %w", t.Key(), err)
	}

	t.ResourceVersion++
	return t, nil
}

// Delete removes a trigger and its open contexts.
// Deleting a missing trigger is not an error.
func (r *Triggers) Delete(ctx context.Context, namespace, name string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM triggers WHERE namespace = ? AND name = ?
	`, namespace, name)
	if err != nil {
		return fmt.Errorf("delete trigger %s/%s: %w", namespace, name, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (ir.Trigger, error) {
	var (
		t      ir.Trigger
		spec   string
		status sql.NullString
	)
	if err := row.Scan(&t.Namespace, &t.Name, &t.ResourceVersion, &spec, &status); err != nil {
		return ir.Trigger{}, err
	}

	var err error
	if t.Spec, err = unmarshalSpec(spec); err != nil {
		return ir.Trigger{}, err
	}
	if status.Valid {
		if t.Status, err = unmarshalStatus(&status.String); err != nil {
			return ir.Trigger{}, err
		}
	}
	return t, nil
}
