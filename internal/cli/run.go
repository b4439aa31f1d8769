package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/correlate/internal/bus"
	"github.com/roach88/correlate/internal/engine"
	"github.com/roach88/correlate/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database        string
	Triggers        string
	Events          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisChannel    string
	ContextTTL      time.Duration
	ConflictRetries int

	// IDGenerator allows overriding the context id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator

	// Stdin replaces os.Stdin when --events is "-" (for testing).
	Stdin io.Reader
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

// newRunCommand builds the run command around caller-owned options, so
// tests can inject an IDGenerator or Stdin.
func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the correlation engine",
		Long: `Start the correlation engine against a SQLite database.

Events are read from exactly one source: a JSON-lines file (--events, "-"
for stdin) or a Redis pub/sub channel (--redis-addr). With --triggers, the
CUE trigger definitions in that directory are applied before the engine
starts.

A file source stops the engine once every event has been processed.
A Redis source runs until interrupted.

Example:
  correlate run --db ./correlate.db --triggers ./triggers --events events.jsonl
  correlate run --db ./correlate.db --redis-addr localhost:6379 --redis-channel events`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Triggers, "triggers", "", "directory of CUE trigger definitions to apply first")
	cmd.Flags().StringVar(&opts.Events, "events", "", `JSON-lines event file ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.RedisAddr, "redis-addr", "", "Redis address for the pub/sub event source")
	cmd.Flags().StringVar(&opts.RedisPassword, "redis-password", "", "Redis password")
	cmd.Flags().IntVar(&opts.RedisDB, "redis-db", 0, "Redis database number")
	cmd.Flags().StringVar(&opts.RedisChannel, "redis-channel", "events", "Redis pub/sub channel")
	cmd.Flags().DurationVar(&opts.ContextTTL, "context-ttl", 0, "expire open contexts idle longer than this (0 = never)")
	cmd.Flags().IntVar(&opts.ConflictRetries, "conflict-retries", 0, "retries after a resource version conflict")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("events", "redis-addr")
	cmd.MarkFlagsOneRequired("events", "redis-addr")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Open database (create if not exists)
	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return p.fail(nil, commandError(ErrCodeDatabase, "failed to open database", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if opts.Triggers != "" {
		triggers, err := loadValidTriggers(opts.Triggers)
		if err != nil {
			return p.fail(nil, commandError(loadErrorCode(err), "failed to load triggers", err))
		}
		applied, err := applyTriggers(ctx, st, triggers)
		if err != nil {
			return p.fail(nil, failure(ErrCodeApplyFailed, "failed to apply triggers", err))
		}
		logger.Info("triggers applied", "dir", opts.Triggers, "count", len(applied))
	}

	source, finished, closeSource, err := openSource(opts, logger)
	if err != nil {
		return p.fail(nil, commandError(ErrCodeEventSource, "failed to open event source", err))
	}
	defer closeSource()

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(st.Triggers(), st.Instances(),
		engine.WithLogger(logger),
		engine.WithIDGenerator(idGen),
		engine.WithSource(source),
		engine.WithContextTTL(opts.ContextTTL),
		engine.WithConflictRetries(opts.ConflictRetries),
	)
	if err != nil {
		return p.fail(nil, commandError(ErrCodeEngineConfig, "invalid engine configuration", err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-finished:
			// Input exhausted: let the engine drain what was queued.
			eng.Stop()
		case <-ctx.Done():
		}
	}()

	runErr := eng.Run(ctx)
	summary := RunSummary{Processed: eng.Processed(), Source: sourceName(opts)}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return p.fail(summary, failure(ErrCodeEngineFailed, "engine error", runErr))
	}

	logger.Info("engine stopped gracefully", "processed", summary.Processed)
	return p.report(summary)
}

// RunSummary is the run command report.
type RunSummary struct {
	Processed int64  `json:"processed"`
	Source    string `json:"source"`
}

// WriteText implements Report.
func (r RunSummary) WriteText(w io.Writer, verbose bool) {
	if verbose {
		fmt.Fprintf(w, "Source: %s\n", r.Source)
	}
	fmt.Fprintf(w, "Processed %d event(s)\n", r.Processed)
}

// sourceName describes the configured event source.
func sourceName(opts *RunOptions) string {
	switch {
	case opts.RedisAddr != "":
		return fmt.Sprintf("redis://%s/%s", opts.RedisAddr, opts.RedisChannel)
	case opts.Events == "-":
		return "stdin"
	default:
		return opts.Events
	}
}

// openSource builds the configured event source. finished is closed when a
// finite source is exhausted; it is nil for sources that never end.
func openSource(opts *RunOptions, logger *slog.Logger) (bus.Source, <-chan struct{}, func(), error) {
	if opts.RedisAddr != "" {
		client := bus.NewRedisClient(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		}
		return bus.NewRedis(client, opts.RedisChannel, logger), nil, closeFn, nil
	}

	var (
		in      io.Reader
		closeFn = func() {}
	)
	switch opts.Events {
	case "":
		return nil, nil, nil, fmt.Errorf("no event source: set --events or --redis-addr")
	case "-":
		in = opts.Stdin
		if in == nil {
			in = os.Stdin
		}
	default:
		f, err := os.Open(opts.Events)
		if err != nil {
			return nil, nil, nil, err
		}
		in = f
		closeFn = func() { f.Close() }
	}

	reader := bus.NewReader(in, logger)
	return reader, reader.Done(), closeFn, nil
}
