package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/georesolve/internal/config"
	"github.com/roach88/georesolve/internal/engine"
	"github.com/roach88/georesolve/internal/metrics"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/resolve"
	"github.com/roach88/georesolve/internal/sideinput"
	"github.com/roach88/georesolve/internal/store"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Config      string
	Database    string
	InBatch     string
	OutBatch    string
	Inputs      []int
	MetricsAddr string
	EnvFiles    []string

	// IDGenerator allows overriding the output id generator (for testing).
	// If nil, defaults to UUIDv7.
	IDGenerator record.IDGenerator

	// Fetcher allows overriding the side-input fetcher (for testing).
	// If nil, defaults to file/http/s3 with retries.
	Fetcher sideinput.Fetcher
}

// ResolveResult is the JSON payload of a successful resolve.
type ResolveResult struct {
	Mode      string         `json:"mode"`
	GroupBy   string         `json:"group_by"`
	InBatch   string         `json:"in_batch"`
	OutBatch  string         `json:"out_batch"`
	Groups    int            `json:"groups"`
	In        int            `json:"in"`
	Out       int            `json:"out"`
	Skipped   map[string]int `json:"skipped,omitempty"`
	Reissued  int            `json:"reissued,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a batch of records into an output batch",
		Long: `Resolve every group of an input batch with the mode named by the job file.

The job file selects the mode, group key and side inputs. Side-input URLs
and S3 credentials left empty in the file are read from GEORESOLVE_*
environment variables or the --env-file files. The output batch is
replaced atomically per group.

Examples:
  georesolve resolve --config job.yaml --db records.db --in raw --out clean
  georesolve resolve --config job.yaml --db records.db --in raw --out clean --input 0 --input 2
  georesolve resolve --config job.yaml --db records.db --in raw --out clean --metrics-addr :9100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to job YAML (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.InBatch, "in", "", "input batch name (required)")
	cmd.Flags().StringVar(&opts.OutBatch, "out", "", "output batch name (required)")
	cmd.Flags().IntSliceVar(&opts.Inputs, "input", nil, "restrict to these input numbers")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "dotenv files with defaults")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := slog.Default()

	env, err := config.ReadEnv(opts.EnvFiles...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to read env files", err)
	}
	job, err := config.Load(opts.Config, env)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid job", err)
	}
	mode, err := job.ResolveMode()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid job", err)
	}
	formatter.VerboseLog("Mode %s, group by %s, %d worker(s)", mode.Name(), job.EffectiveGroupBy(mode), job.Workers)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher, err = sideinput.NewDefaultFetcher(job.S3Config(), uint64(job.SideInputs.Retries))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to configure fetcher", err)
		}
	}
	wc, err := sideinput.Load(ctx, job.SideInputConfig(), fetcher, sideinput.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeSideInput, "failed to load side inputs", err)
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	m := metrics.New()
	if opts.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, opts.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
	}

	resolverOpts := []resolve.Option{resolve.WithLogger(logger), resolve.WithMetrics(m)}
	engineOpts := []engine.EngineOption{
		engine.WithWorkers(job.Workers),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	}
	if opts.IDGenerator != nil {
		resolverOpts = append(resolverOpts, resolve.WithIDGenerator(opts.IDGenerator))
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}

	r, err := resolve.New(mode, wc, resolverOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to build resolver", err)
	}
	eng := engine.New(st, r, engineOpts...)

	sum, err := eng.Run(ctx, engine.RunSpec{
		InBatch:  opts.InBatch,
		OutBatch: opts.OutBatch,
		GroupBy:  job.EffectiveGroupBy(mode),
		Inputs:   opts.Inputs,
	})
	if err != nil {
		return failRun(formatter, err)
	}

	result := ResolveResult{
		Mode:      sum.Mode,
		GroupBy:   sum.GroupBy,
		InBatch:   opts.InBatch,
		OutBatch:  opts.OutBatch,
		Groups:    sum.Groups,
		In:        sum.In,
		Out:       sum.Out,
		Skipped:   sum.Skipped,
		Reissued:  sum.Reissued,
		ElapsedMS: sum.Elapsed.Milliseconds(),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Resolved %s -> %s (%s by %s)\n", opts.InBatch, opts.OutBatch, sum.Mode, sum.GroupBy)
	fmt.Fprintf(w, "  groups: %d, in: %d, out: %d\n", sum.Groups, sum.In, sum.Out)
	for _, reason := range sum.SkipReasons() {
		fmt.Fprintf(w, "  skipped %s: %d\n", reason, sum.Skipped[reason])
	}
	if sum.Reissued > 0 {
		fmt.Fprintf(w, "  reissued ids: %d\n", sum.Reissued)
	}
	return nil
}

// failRun maps engine errors onto exit and error codes.
func failRun(formatter *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "resolve interrupted", err)
	case engine.IsSideInputError(err):
		return formatter.Fail(ExitFailure, ErrCodeSideInput, "side input unavailable", err)
	case engine.IsStoreError(err):
		return formatter.Fail(ExitCommandError, ErrCodeStore, "store error", err)
	default:
		var ge *engine.GroupError
		if errors.As(err, &ge) {
			return formatter.Fail(ExitFailure, ErrCodeResolve, "group failed", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid run", err)
	}
}
