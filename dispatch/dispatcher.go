// Package dispatch fans a query out to a set of environments and collects one result per
// environment, in resolution order, regardless of which calls finish first.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/opsorch/opsorch-multiquery/aggregate"
	"github.com/opsorch/opsorch-multiquery/environment"
	"github.com/opsorch/opsorch-multiquery/executor"
	"github.com/opsorch/opsorch-multiquery/orcherr"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// Defaults fill in request fields left at their zero value.
type Defaults struct {
	PerCallTimeout   time.Duration
	ParallelismLimit int
	Mode             schema.Mode
	Aggregate        schema.Aggregation
}

// DefaultDefaults returns the built-in request defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		PerCallTimeout:   5 * time.Minute,
		ParallelismLimit: 5,
		Mode:             schema.ModeParallel,
		Aggregate:        schema.AggregateMerge,
	}
}

// Snapshotter is the read side of the environment registry.
type Snapshotter interface {
	Snapshot() environment.Snapshot
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock sets the clock used for timestamps and call durations.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// Dispatcher executes QueryRequests against the environments of a registry.
// It is safe for concurrent use; each dispatch works on its own registry snapshot.
type Dispatcher struct {
	registry Snapshotter
	executor executor.Executor
	defaults Defaults
	logger   *zap.Logger
	clock    clock.Clock
	metrics  *dispatchMetrics
}

// New constructs a Dispatcher. Zero fields of defaults fall back to DefaultDefaults.
func New(registry Snapshotter, exec executor.Executor, defaults Defaults, opts ...Option) *Dispatcher {
	builtin := DefaultDefaults()
	if defaults.PerCallTimeout <= 0 {
		defaults.PerCallTimeout = builtin.PerCallTimeout
	}
	if defaults.ParallelismLimit <= 0 {
		defaults.ParallelismLimit = builtin.ParallelismLimit
	}
	if defaults.Mode == "" {
		defaults.Mode = builtin.Mode
	}
	if defaults.Aggregate == "" {
		defaults.Aggregate = builtin.Aggregate
	}

	d := &Dispatcher{
		registry: registry,
		executor: exec,
		defaults: defaults,
		logger:   zap.NewNop(),
		clock:    clock.New(),
		metrics:  newDispatchMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Defaults returns the effective request defaults.
func (d *Dispatcher) Defaults() Defaults { return d.defaults }

// PrometheusCollectors exposes the dispatcher metrics for registration.
func (d *Dispatcher) PrometheusCollectors() []prometheus.Collector {
	return d.metrics.PrometheusCollectors()
}

// plan is a validated request bound to a registry snapshot.
type plan struct {
	id              string
	query           string
	timeRange       schema.TimeRange
	mode            schema.Mode
	aggregate       schema.Aggregation
	limit           int
	timeout         time.Duration
	continueOnError bool
	envs            []schema.Environment
	unknown         []schema.EnvironmentQueryResult
}

// Dispatch runs req and returns one result per environment. The returned error is
// non-nil only when the request is rejected as a whole, before any executor call;
// per-environment failures are reported inside the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req schema.QueryRequest) (schema.AggregatedResult, error) {
	p, err := d.plan(req)
	if err != nil {
		mode := req.Mode
		if mode == "" {
			mode = d.defaults.Mode
		}
		// The label only carries known modes; request input must not mint new series.
		label := string(mode)
		if !mode.Valid() {
			label = "invalid"
		}
		d.metrics.dispatches.WithLabelValues(label, "rejected").Inc()
		d.logger.Info("Rejected dispatch", zap.String("mode", string(mode)), zap.Error(err))
		return schema.AggregatedResult{}, err
	}

	log := d.logger.With(
		zap.String("dispatch_id", p.id),
		zap.String("mode", string(p.mode)),
		zap.Int("environments", len(p.envs)),
	)
	log.Debug("Dispatching query",
		zap.String("time_range", p.timeRange.String()),
		zap.Int("parallelism", p.limit),
		zap.Duration("per_call_timeout", p.timeout),
		zap.Bool("continue_on_error", p.continueOnError),
	)

	results := make([]schema.EnvironmentQueryResult, len(p.envs), len(p.envs)+len(p.unknown))
	switch p.mode {
	case schema.ModeParallel:
		d.runParallel(ctx, log, p, results)
	default:
		d.runSequential(ctx, log, p, results)
	}
	results = append(results, p.unknown...)

	out := aggregate.Aggregate(results, p.aggregate)
	out.DispatchID = p.id
	out.Mode = p.mode
	out.TimeRange = p.timeRange
	out.Timestamp = d.clock.Now().UTC()

	var succeeded, failed, skipped int
	for _, r := range results {
		switch {
		case r.Success:
			succeeded++
		case r.ErrorKind == schema.ErrorSkipped:
			skipped++
		default:
			failed++
		}
	}
	outcome := "success"
	switch {
	case succeeded == 0:
		outcome = "failed"
	case failed+skipped > 0:
		outcome = "partial"
	}
	d.metrics.dispatches.WithLabelValues(string(p.mode), outcome).Inc()
	log.Info("Dispatch completed",
		zap.String("outcome", outcome),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

func (d *Dispatcher) plan(req schema.QueryRequest) (*plan, error) {
	p := &plan{
		query:           req.Query,
		timeRange:       req.TimeRange,
		mode:            req.Mode,
		aggregate:       req.Aggregate,
		limit:           req.ParallelismLimit,
		timeout:         time.Duration(req.PerCallTimeout),
		continueOnError: req.ContinueOnError,
	}

	if p.mode == "" {
		p.mode = d.defaults.Mode
	}
	if !p.mode.Valid() {
		return nil, orcherr.New(orcherr.CodeInvalidMode, fmt.Sprintf("unknown mode %q", p.mode), nil)
	}
	if p.aggregate == "" {
		p.aggregate = d.defaults.Aggregate
	}
	if !p.aggregate.Valid() {
		return nil, orcherr.New(orcherr.CodeBadRequest, fmt.Sprintf("unknown aggregate %q", p.aggregate), nil)
	}
	if p.timeRange.IsZero() {
		p.timeRange = schema.TimeRange{Relative: schema.DefaultRelativeRange}
	}
	if err := p.timeRange.Validate(); err != nil {
		return nil, orcherr.New(orcherr.CodeBadRequest, "invalid time range", err)
	}
	switch {
	case p.limit < 0:
		return nil, orcherr.New(orcherr.CodeBadRequest, "parallelismLimit must be at least 1", nil)
	case p.limit == 0:
		p.limit = d.defaults.ParallelismLimit
	}
	switch {
	case p.timeout < 0:
		return nil, orcherr.New(orcherr.CodeBadRequest, "perCallTimeout must be positive", nil)
	case p.timeout == 0:
		p.timeout = d.defaults.PerCallTimeout
	}

	snap := d.registry.Snapshot()
	if len(req.TargetEnvironmentIDs) == 0 {
		p.envs = snap.ListActive()
	} else {
		var missing []string
		p.envs, missing = snap.Resolve(req.TargetEnvironmentIDs)
		if len(missing) > 0 {
			if !p.continueOnError {
				return nil, orcherr.New(orcherr.CodeUnknownEnvironment,
					fmt.Sprintf("unknown environment(s): %s", strings.Join(missing, ", ")), nil)
			}
			for _, id := range missing {
				p.unknown = append(p.unknown, schema.EnvironmentQueryResult{
					EnvironmentID:   id,
					EnvironmentName: id,
					ErrorKind:       schema.ErrorUnknownEnvironment,
					ErrorMessage:    fmt.Sprintf("environment %q is not registered", id),
				})
			}
		}
	}
	if len(p.envs) == 0 {
		return nil, orcherr.New(orcherr.CodeNoEnvironments, "no environments to query", nil)
	}
	if p.mode == schema.ModeSingle && len(p.envs) != 1 {
		return nil, orcherr.New(orcherr.CodeInvalidMode,
			fmt.Sprintf("single mode requires exactly one environment, got %d", len(p.envs)), nil)
	}

	p.id = uuid.NewString()
	return p, nil
}

func (d *Dispatcher) runSequential(ctx context.Context, log *zap.Logger, p *plan, results []schema.EnvironmentQueryResult) {
	stopped := false
	for i, env := range p.envs {
		switch {
		case stopped:
			results[i] = skippedResult(env, "skipped after an earlier environment failed")
			continue
		case ctx.Err() != nil:
			results[i] = skippedResult(env, "dispatch canceled before this environment started")
			continue
		}
		results[i] = d.call(ctx, log, p, env)
		if !results[i].Success && !p.continueOnError {
			log.Debug("Stopping after failure", zap.String("environment", env.ID))
			stopped = true
		}
	}
}

// runParallel admits at most p.limit concurrent calls. A failure without continueOnError
// stops new admissions; calls already running are awaited.
func (d *Dispatcher) runParallel(ctx context.Context, log *zap.Logger, p *plan, results []schema.EnvironmentQueryResult) {
	sem := semaphore.NewWeighted(int64(p.limit))
	var (
		wg      sync.WaitGroup
		stopped atomic.Bool
	)
	for i, env := range p.envs {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = skippedResult(env, "dispatch canceled before this environment started")
			continue
		}
		if stopped.Load() {
			sem.Release(1)
			results[i] = skippedResult(env, "skipped after an earlier environment failed")
			continue
		}
		if ctx.Err() != nil {
			sem.Release(1)
			results[i] = skippedResult(env, "dispatch canceled before this environment started")
			continue
		}

		wg.Add(1)
		go func(i int, env schema.Environment) {
			defer wg.Done()
			defer sem.Release(1)

			res := d.call(ctx, log, p, env)
			if !res.Success && !p.continueOnError && stopped.CompareAndSwap(false, true) {
				log.Debug("Stopping new admissions after failure", zap.String("environment", env.ID))
			}
			results[i] = res
		}(i, env)
	}
	wg.Wait()
}

type callOutcome struct {
	rows schema.RowSet
	err  error
}

// call runs one executor call under the per-call timeout. The wait ends at the bound even
// when the executor does not honour its context.
func (d *Dispatcher) call(ctx context.Context, log *zap.Logger, p *plan, env schema.Environment) schema.EnvironmentQueryResult {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	d.metrics.inflight.Inc()
	defer d.metrics.inflight.Dec()

	start := d.clock.Now()
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: orcherr.New(orcherr.CodeBackendError, fmt.Sprintf("executor panic: %v", r), nil)}
			}
		}()
		rows, err := d.executor.Execute(callCtx, env, p.query, p.timeRange)
		done <- callOutcome{rows: rows, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = callCtx.Err()
	}
	elapsed := d.clock.Since(start)

	res := schema.EnvironmentQueryResult{
		EnvironmentID:   env.ID,
		EnvironmentName: env.DisplayName(),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	// A per-call deadline is reported as a timeout; a canceled caller is not.
	if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
		out.err = orcherr.New(orcherr.CodeTimeout, fmt.Sprintf("no response within %s", p.timeout), out.err)
	}

	if out.err != nil {
		res.ErrorKind, res.ErrorMessage = executor.Classify(out.err)
		log.Warn("Environment query failed",
			zap.String("environment", env.ID),
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(out.err),
		)
	} else {
		res.Success = true
		res.Rows = out.rows.Rows
		if res.Rows == nil {
			res.Rows = []schema.Row{}
		}
		res.Fields = out.rows.Fields
		log.Debug("Environment query succeeded",
			zap.String("environment", env.ID),
			zap.Int("rows", len(res.Rows)),
			zap.Duration("elapsed", elapsed),
		)
	}

	result := "success"
	if !res.Success {
		result = string(res.ErrorKind)
	}
	d.metrics.calls.WithLabelValues(env.ID, result).Inc()
	d.metrics.callDuration.WithLabelValues(env.ID).Observe(elapsed.Seconds())
	return res
}

func skippedResult(env schema.Environment, reason string) schema.EnvironmentQueryResult {
	return schema.EnvironmentQueryResult{
		EnvironmentID:   env.ID,
		EnvironmentName: env.DisplayName(),
		ErrorKind:       schema.ErrorSkipped,
		ErrorMessage:    reason,
	}
}

// ProbeQuery is the cheap query used to check that environments answer.
const ProbeQuery = "* | head 1"

// ProbeRequest builds a connectivity check over ids (all active environments when empty).
// Every environment is tried and reported under its own id.
func ProbeRequest(ids []string) schema.QueryRequest {
	return schema.QueryRequest{
		Query:                ProbeQuery,
		TimeRange:            schema.TimeRange{Relative: "1h"},
		TargetEnvironmentIDs: ids,
		Mode:                 schema.ModeParallel,
		ContinueOnError:      true,
		Aggregate:            schema.AggregateGroup,
	}
}
