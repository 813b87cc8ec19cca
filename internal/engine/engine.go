package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/georesolve/internal/metrics"
	"github.com/roach88/georesolve/internal/record"
	"github.com/roach88/georesolve/internal/resolve"
	"github.com/roach88/georesolve/internal/sideinput"
	"github.com/roach88/georesolve/internal/store"
)

// Engine resolves stored batches group by group.
type Engine struct {
	store    *store.Store
	resolver *resolve.Resolver
	workers  int
	ids      record.IDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithWorkers sets how many groups are resolved at once.
//
// Default: runtime.GOMAXPROCS(0). Values below 1 are ignored.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithIDGenerator sets the generator used to reissue duplicate output ids.
func WithIDGenerator(g record.IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger for group progress and failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records per-group outcome, size and duration.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine reading from and writing to s.
func New(s *store.Store, r *resolve.Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		resolver: r,
		workers:  runtime.GOMAXPROCS(0),
		ids:      record.UUIDGenerator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunSpec names what a run reads and writes.
type RunSpec struct {
	// InBatch is the batch to resolve.
	InBatch string

	// OutBatch receives the output. Existing records are replaced.
	OutBatch string

	// GroupBy is "tile", "parent" or "id". Empty uses the mode's default.
	GroupBy string

	// Inputs restricts the run to these input numbers. Empty means all.
	Inputs []int
}

// Summary reports what a run did.
type Summary struct {
	Mode     string
	GroupBy  string
	Groups   int
	In       int
	Out      int
	Skipped  map[string]int
	Reissued int
	Elapsed  time.Duration
}

// SkippedTotal sums the skip counters.
func (s Summary) SkippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Run resolves every group of rs.InBatch and replaces rs.OutBatch with
// the result. The replacement is a single transaction: nothing is written
// unless every group resolves and every record is stored.
func (e *Engine) Run(ctx context.Context, rs RunSpec) (Summary, error) {
	start := time.Now()
	mode := e.resolver.Mode()

	if rs.InBatch == "" || rs.OutBatch == "" {
		return Summary{}, errors.New("run: input and output batch are required")
	}
	if rs.InBatch == rs.OutBatch {
		return Summary{}, fmt.Errorf("run: output batch %q must differ from input batch", rs.OutBatch)
	}
	groupBy := rs.GroupBy
	if groupBy == "" {
		groupBy = mode.DefaultGroupBy()
	}

	groups, err := e.store.ReadGroups(ctx, rs.InBatch, groupBy)
	if err != nil {
		return Summary{}, storeError("", "read groups", err)
	}
	groups = filterInputs(groups, rs.Inputs)

	e.logger.Info("resolving batch",
		"mode", mode.Name(),
		"in", rs.InBatch,
		"out", rs.OutBatch,
		"group_by", groupBy,
		"groups", len(groups),
		"workers", e.workers,
	)

	results, err := e.resolveAll(ctx, groups)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Mode:    mode.Name(),
		GroupBy: groupBy,
		Groups:  len(groups),
		Skipped: map[string]int{},
	}
	var all []*record.GeoRecord
	for _, res := range results {
		sum.In += res.Stats.In
		sum.Out += res.Stats.Out
		for reason, n := range res.Stats.Skipped {
			sum.Skipped[reason] += n
		}
		all = append(all, res.Records...)
	}
	sum.Reissued = record.EnsureUniqueIDs(all, e.ids)
	if sum.Reissued > 0 {
		e.logger.Debug("reissued duplicate ids", "count", sum.Reissued)
	}

	if err := e.write(ctx, rs.OutBatch, results); err != nil {
		return Summary{}, err
	}

	sum.Elapsed = time.Since(start)
	e.logger.Info("batch resolved",
		"groups", sum.Groups,
		"in", sum.In,
		"out", sum.Out,
		"skipped", sum.SkippedTotal(),
		"elapsed", sum.Elapsed,
	)
	return sum, nil
}

// resolveAll resolves groups on the worker pool. results[i] belongs to
// groups[i]. The first failure cancels the remaining groups.
func (e *Engine) resolveAll(ctx context.Context, groups []store.Group) ([]resolve.Result, error) {
	mode := e.resolver.Mode().Name()
	results := make([]resolve.Result, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, grp := range groups {
		g.Go(func() error {
			start := time.Now()
			res, err := e.resolver.Resolve(gctx, resolve.Group{Key: grp.Key, Batches: grp.Batches})
			if err != nil {
				e.metrics.ObserveGroup(mode, "failed", res.Stats.In, 0, time.Since(start))
				return e.classify(grp.Key, err)
			}
			e.metrics.ObserveGroup(mode, "ok", res.Stats.In, res.Stats.Out, time.Since(start))
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// classify wraps a resolver error in a GroupError and logs it.
// Cancellation is passed through unwrapped.
func (e *Engine) classify(key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := ErrCodeResolveFailed
	msg := "resolve group"
	var le *sideinput.LoadError
	if errors.As(err, &le) {
		code = ErrCodeSideInputFailed
		msg = "load " + string(le.Kind)
	}
	e.logger.Error("group failed", "group", key, "code", code, "error", err)
	return &GroupError{Code: code, Group: key, Message: msg, Err: err}
}

// write replaces outBatch with the results in one transaction.
func (e *Engine) write(ctx context.Context, outBatch string, results []resolve.Result) error {
	groups := make([][]*record.GeoRecord, len(results))
	for i, res := range results {
		groups[i] = res.Records
	}
	if err := e.store.ReplaceBatch(ctx, outBatch, 0, groups); err != nil {
		return storeError("", "replace output batch", err)
	}
	return nil
}

// filterInputs keeps only the listed inputs of each group and drops groups
// left empty. An empty list keeps everything.
func filterInputs(groups []store.Group, inputs []int) []store.Group {
	if len(inputs) == 0 {
		return groups
	}
	keep := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		keep[in] = true
	}

	out := make([]store.Group, 0, len(groups))
	for _, g := range groups {
		f := store.Group{Key: g.Key}
		for k, in := range g.Inputs {
			if keep[in] {
				f.Inputs = append(f.Inputs, in)
				f.Batches = append(f.Batches, g.Batches[k])
			}
		}
		if len(f.Inputs) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// SkipReasons returns the skip reasons of s in sorted order.
func (s Summary) SkipReasons() []string {
	return slices.Sorted(maps.Keys(s.Skipped))
}
