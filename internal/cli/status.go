package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/correlate/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// TriggerStatus summarizes one stored trigger.
type TriggerStatus struct {
	Key             string          `json:"key"`
	ResourceVersion int64           `json:"resource_version"`
	Correlation     string          `json:"correlation"`
	Conditions      int             `json:"conditions"`
	Contexts        []ContextStatus `json:"contexts,omitempty"`
}

// ContextStatus summarizes one open correlation context.
type ContextStatus struct {
	ID        string            `json:"id"`
	Keys      map[string]string `json:"keys,omitempty"`
	Satisfied []int             `json:"satisfied"`
	Events    int               `json:"events"`
}

// InstanceStatus summarizes one started workflow instance.
type InstanceStatus struct {
	Instance string `json:"instance"`
	Workflow string `json:"workflow"`
	Context  string `json:"context"`
}

// StatusResult is the status command payload.
type StatusResult struct {
	Triggers  []TriggerStatus  `json:"triggers"`
	Instances []InstanceStatus `json:"instances"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored triggers, open contexts and started instances",
		Long: `Show every stored trigger with its resource version and open correlation
contexts, followed by the workflow instances the engine has started.

Example:
  correlate status --db ./correlate.db
  correlate status --db ./correlate.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return p.fail(nil, commandError(ErrCodeDatabase, "failed to open database", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := collectStatus(ctx, st)
	if err != nil {
		return p.fail(nil, failure(ErrCodeDatabase, "failed to read status", err))
	}
	return p.report(result)
}

func collectStatus(ctx context.Context, st *store.Store) (StatusResult, error) {
	result := StatusResult{
		Triggers:  []TriggerStatus{},
		Instances: []InstanceStatus{},
	}

	triggers, err := st.Triggers().ListAll(ctx)
	if err != nil {
		return result, err
	}
	for _, t := range triggers {
		ts := TriggerStatus{
			Key:             t.Key(),
			ResourceVersion: t.ResourceVersion,
			Correlation:     string(t.Spec.Correlation.Normalize()),
			Conditions:      len(t.Spec.Conditions),
		}
		if t.Status != nil {
			for _, cc := range t.Status.Contexts {
				ts.Contexts = append(ts.Contexts, ContextStatus{
					ID:        cc.ID,
					Keys:      cc.Keys,
					Satisfied: cc.Satisfied,
					Events:    len(cc.Events),
				})
			}
		}
		result.Triggers = append(result.Triggers, ts)
	}

	instances, err := st.Instances().List(ctx)
	if err != nil {
		return result, err
	}
	for _, inst := range instances {
		result.Instances = append(result.Instances, InstanceStatus{
			Instance: inst.Ref.String(),
			Workflow: fmt.Sprintf("%s/%s@%s", inst.Workflow.Namespace, inst.Workflow.Name, inst.Workflow.Version),
			Context:  inst.ContextID,
		})
	}

	return result, nil
}

// WriteText implements Report.
func (r StatusResult) WriteText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "Triggers (%d)\n", len(r.Triggers))
	for _, t := range r.Triggers {
		fmt.Fprintf(w, "  %s  v%d  %s  %d condition(s)  %d open context(s)\n",
			t.Key, t.ResourceVersion, t.Correlation, t.Conditions, len(t.Contexts))
		for _, cc := range t.Contexts {
			fmt.Fprintf(w, "    %s  keys={%s}  satisfied=%v  events=%d\n",
				cc.ID, formatKeys(cc.Keys), cc.Satisfied, cc.Events)
		}
	}

	fmt.Fprintf(w, "Instances (%d)\n", len(r.Instances))
	for _, inst := range r.Instances {
		fmt.Fprintf(w, "  %s  %s  context=%s\n", inst.Instance, inst.Workflow, inst.Context)
	}
}

// formatKeys renders correlation keys in sorted order.
func formatKeys(keys map[string]string) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+keys[k])
	}
	return strings.Join(parts, ",")
}
