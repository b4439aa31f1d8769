package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/correlate/internal/ir"
	"github.com/roach88/correlate/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
}

// AppliedTrigger is one trigger written by apply.
type AppliedTrigger struct {
	Key             string `json:"key"`
	ResourceVersion int64  `json:"resource_version"`
}

// ApplyResult is the apply command report.
type ApplyResult struct {
	Triggers []AppliedTrigger `json:"triggers"`
}

// WriteText implements Report.
func (r ApplyResult) WriteText(w io.Writer, verbose bool) {
	if verbose {
		for _, a := range r.Triggers {
			fmt.Fprintf(w, "  %s (version %d)\n", a.Key, a.ResourceVersion)
		}
	}
	fmt.Fprintf(w, "✓ Applied %d trigger(s)\n", len(r.Triggers))
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <triggers-dir>",
		Short: "Store trigger definitions in the database",
		Long: `Compile and validate CUE trigger definitions, then upsert them into the
database. Replacing a trigger keeps its open correlation contexts and bumps
its resource version.

Example:
  correlate apply --db ./correlate.db ./triggers`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runApply(opts *ApplyOptions, dir string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	triggers, err := loadValidTriggers(dir)
	if err != nil {
		return p.fail(nil, commandError(loadErrorCode(err), "failed to load triggers", err))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return p.fail(nil, commandError(ErrCodeDatabase, "failed to open database", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	applied, err := applyTriggers(ctx, st, triggers)
	if err != nil {
		return p.fail(ApplyResult{Triggers: applied}, failure(ErrCodeApplyFailed, "failed to apply triggers", err))
	}
	return p.report(ApplyResult{Triggers: applied})
}

func applyTriggers(ctx context.Context, st *store.Store, triggers []ir.Trigger) ([]AppliedTrigger, error) {
	repo := st.Triggers()
	applied := make([]AppliedTrigger, 0, len(triggers))
	for _, t := range triggers {
		stored, err := repo.Put(ctx, t)
		if err != nil {
			return applied, err
		}
		applied = append(applied, AppliedTrigger{Key: stored.Key(), ResourceVersion: stored.ResourceVersion})
	}
	return applied, nil
}
