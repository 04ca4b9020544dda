// Package query executes a query across every partition key
// range of a container. An Execution returns results one page
// at a time, each page carrying a continuation from which the
// query can be resumed by a later Execution, even after the
// container's partitions were split or merged.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrife/xpquery/checkpoint"
	"github.com/jrife/xpquery/diagnostics"
	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/plan"
	"github.com/jrife/xpquery/query/continuation"
	"github.com/jrife/xpquery/query/merge"
	"github.com/jrife/xpquery/query/producer"
	"github.com/jrife/xpquery/transport"
	"github.com/jrife/xpquery/utils/log"
	"go.uber.org/zap"
)

// Config configures an Execution
type Config struct {
	Logger *zap.Logger
	// MaxConcurrency bounds the number of page fetches
	// in flight. Zero means the number of CPUs.
	MaxConcurrency int
	// MaxBufferedItems bounds the items buffered per
	// partition key range. Zero means unbounded.
	MaxBufferedItems int
	// PageSizeHint is passed to the fetcher with every request
	PageSizeHint int
	// IdentityKey is the document path that uniquely
	// identifies a result. Defaults to "id".
	IdentityKey string
	// Checkpoints, if set, receives the continuation of
	// every page returned by Drain under QueryID
	Checkpoints checkpoint.Store
	QueryID     string
}

// Execution is one run of a query. Drain calls are serialized.
type Execution struct {
	mu         sync.Mutex
	engine     *merge.Engine
	trace      *diagnostics.Trace
	config     Config
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelCauseFunc
	terminated bool
	complete   bool
	last       string
}

// Start begins executing p against the ranges of topology.
// token is a continuation returned by an earlier Execution
// of the same query or "" to start from the beginning.
func Start(ctx context.Context, fetcher transport.Fetcher, topology *partition.Topology, p plan.Plan, token string, config Config) (*Execution, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	logger := log.WithContext(ctx, config.Logger).With(zap.String("operation", "Start"), zap.String("query", config.QueryID))
	logger.Debug("start")
	defer logger.Debug("return")

	if err := p.Validate(); err != nil {
		return nil, err
	}

	var cont *continuation.Continuation

	if token != "" {
		decoded, err := continuation.Decode(token)

		if err != nil {
			return nil, err
		}

		if decoded.Fingerprint != p.Fingerprint() {
			return nil, fmt.Errorf("%w: continuation belongs to a different query", ErrMalformedContinuation)
		}

		cont = decoded
	}

	entries, err := continuation.Remap(cont, topology)

	if err != nil {
		return nil, err
	}

	trace := diagnostics.New()

	if config.QueryID != "" {
		trace.AddDatum("query", config.QueryID)
	}

	producerConfig := producer.Config{
		MaxBufferedItems: config.MaxBufferedItems,
		PageSizeHint:     config.PageSizeHint,
		IdentityKey:      config.IdentityKey,
		Logger:           config.Logger,
		Trace:            trace,
	}

	producers := make([]*producer.Producer, 0, len(entries))

	for _, entry := range entries {
		producers = append(producers, producer.New(fetcher, entry, producerConfig))
	}

	var done []partition.Range
	var yielded int64

	if cont != nil {
		done = cont.Done()
		yielded = cont.Yielded
	}

	engine, err := merge.NewEngine(merge.NewSet(producers, done, config.Logger), p, yielded, merge.Config{
		MaxConcurrency: config.MaxConcurrency,
		Logger:         config.Logger,
	})

	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithCancelCause(context.Background())
	logger.Debug("planned", zap.Int("ranges", len(producers)), zap.Bool("resumed", cont != nil))

	return &Execution{
		engine: engine,
		trace:  trace,
		config: config,
		logger: config.Logger.With(zap.String("query", config.QueryID)),
		ctx:    execCtx,
		cancel: cancel,
		last:   token,
	}, nil
}

// Resume starts p from the continuation saved in store under
// queryID, or from the beginning if none was saved. Every page
// returned by the execution is checkpointed to store.
func Resume(ctx context.Context, store checkpoint.Store, queryID string, fetcher transport.Fetcher, topology *partition.Topology, p plan.Plan, config Config) (*Execution, error) {
	token, err := store.Load(ctx, queryID)

	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("could not load checkpoint for query %s: %w", queryID, err)
	}

	config.Checkpoints = store
	config.QueryID = queryID

	return Start(ctx, fetcher, topology, p, token, config)
}

// Drain returns a page of up to maxItems results. The page's
// state is the continuation to resume from after its last item
// and is absent once the query has no more results. A Drain that
// fails returns no page and terminates the execution.
func (execution *Execution) Drain(ctx context.Context, maxItems int) (page.Page[string], error) {
	execution.mu.Lock()
	defer execution.mu.Unlock()

	logger := log.WithContext(ctx, execution.logger).With(zap.String("operation", "Drain"), zap.Int("maxItems", maxItems))
	logger.Debug("start")

	if execution.terminated {
		return page.Page[string]{}, ErrTerminated
	}

	if execution.complete {
		return page.New[string](nil, 0, "", 0, nil)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if execution.ctx.Err() != nil {
		cancel(context.Cause(execution.ctx))
	}

	stop := context.AfterFunc(execution.ctx, func() { cancel(context.Cause(execution.ctx)) })
	defer stop()

	before := execution.trace.Snapshot()
	items, complete, err := execution.drain(ctx, maxItems)
	after := execution.trace.Snapshot()

	if err != nil {
		execution.terminated = true

		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			err = execution.canceled(ctx, err)
			logger.Warn("canceled", zap.Error(err), zap.Object("diagnostics", after))

			return page.Page[string]{}, err
		}

		logger.Warn("failed", zap.Int("items", len(items)), zap.Error(err))

		return page.Page[string]{}, &DrainError{Err: err, Items: len(items), RequestCharge: after.RequestCharge - before.RequestCharge}
	}

	var state *string

	if !complete {
		token, err := execution.checkpoint()

		if err != nil {
			execution.terminated = true

			return page.Page[string]{}, &DrainError{Err: err, Items: len(items), RequestCharge: after.RequestCharge - before.RequestCharge}
		}

		state = &token
	}

	if err := execution.save(ctx, state); err != nil {
		execution.terminated = true

		return page.Page[string]{}, &DrainError{Err: err, Items: len(items), RequestCharge: after.RequestCharge - before.RequestCharge}
	}

	var activityID string

	if n := len(after.ActivityIDs); n > len(before.ActivityIDs) {
		activityID = after.ActivityIDs[n-1]
	}

	result, err := page.New(items, after.RequestCharge-before.RequestCharge, activityID, after.ResponseSizeBytes-before.ResponseSizeBytes, state)

	if err != nil {
		execution.terminated = true

		return page.Page[string]{}, &DrainError{Err: err, Items: len(items)}
	}

	if after.ExecutionInfo != nil {
		result = result.WithExecutionInfo(*after.ExecutionInfo)
	}

	execution.complete = complete

	if state != nil {
		execution.last = *state
	} else {
		execution.last = ""
	}

	logger.Debug("return", zap.Int("items", len(items)), zap.Bool("complete", complete), zap.Float64("charge", result.RequestCharge()))

	return result, nil
}

func (execution *Execution) drain(ctx context.Context, maxItems int) ([]document.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	return execution.engine.Drain(ctx, maxItems)
}

// canceled builds the CanceledError for a Drain that ended
// because ctx was canceled or its deadline could not be met
func (execution *Execution) canceled(ctx context.Context, err error) error {
	cause := context.Cause(ctx)

	if cause == nil {
		cause = err
	}

	execution.trace.AddDatum("cancellation", cause.Error())

	return &CanceledError{
		Cause:            cause,
		DeadlineExceeded: errors.Is(cause, context.DeadlineExceeded),
		Diagnostics:      execution.trace.Snapshot(),
	}
}

func (execution *Execution) checkpoint() (string, error) {
	cont, err := execution.engine.Checkpoint()

	if err != nil {
		return "", err
	}

	return continuation.Encode(cont)
}

func (execution *Execution) save(ctx context.Context, state *string) error {
	if execution.config.Checkpoints == nil {
		return nil
	}

	if state == nil {
		return execution.config.Checkpoints.Delete(ctx, execution.config.QueryID)
	}

	return execution.config.Checkpoints.Save(ctx, execution.config.QueryID, *state)
}

// Cancel stops the execution. A Drain in progress returns a
// CanceledError as soon as possible and so does every
// later Drain.
func (execution *Execution) Cancel() {
	execution.cancel(ErrCanceled)
}

// Diagnostics returns a snapshot of everything the execution
// has done so far
func (execution *Execution) Diagnostics() diagnostics.Snapshot {
	return execution.trace.Snapshot()
}

// Continuation returns the continuation of the last page
// returned by Drain, or the one the execution started
// from. It is "" once the query is complete.
func (execution *Execution) Continuation() string {
	execution.mu.Lock()
	defer execution.mu.Unlock()

	return execution.last
}
