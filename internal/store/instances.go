package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/correlate/internal/ir"
)

// Instances is the SQLite-backed workflow instance repository.
type Instances struct {
	db *sql.DB
}

// Instance is a stored workflow instance record.
type Instance struct {
	Ref         ir.InstanceRef
	Workflow    ir.WorkflowRef
	ContextID   string
	Correlation ir.CorrelationContext
}

// Create records a workflow instance for a fired correlation context.
//
// The instance name is derived from (workflow, context id). Creating the
// same pair twice is a no-op that returns the existing reference.
func (r *Instances) Create(ctx context.Context, wf ir.WorkflowRef, cc ir.CorrelationContext, namespace string) (ir.InstanceRef, error) {
	name, err := ir.InstanceName(wf, cc.ID)
	if err != nil {
		return ir.InstanceRef{}, fmt.Errorf("create instance: %w", err)
	}

	correlation, err := marshalCanonical(cc)
	if err != nil {
		return ir.InstanceRef{}, fmt.Errorf("create instance: marshal correlation: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances
			(namespace, name, workflow_namespace, workflow_name, workflow_version, context_id, correlation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, name) DO NOTHING
	`, namespace, name, wf.Namespace, wf.Name, wf.Version, cc.ID, correlation)
	if err != nil {
		return ir.InstanceRef{}, fmt.Errorf("create instance %s/%s: %w", namespace, name, err)
	}

	return ir.InstanceRef{Namespace: namespace, Name: name}, nil
}

// List returns all instances ordered by (namespace, name).
func (r *Instances) List(ctx context.Context) ([]Instance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT namespace, name, workflow_namespace, workflow_name, workflow_version, context_id, correlation
		FROM workflow_instances
		ORDER BY namespace ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var (
			inst        Instance
			correlation string
		)
		if err := rows.Scan(
			&inst.Ref.Namespace, &inst.Ref.Name,
			&inst.Workflow.Namespace, &inst.Workflow.Name, &inst.Workflow.Version,
			&inst.ContextID, &correlation,
		); err != nil {
			return nil, fmt.Errorf("list instances: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(correlation), &inst.Correlation); err != nil {
			return nil, fmt.Errorf("list instances: unmarshal correlation: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}
