// Package merge combines the producers of every partition key
// range of a query into a single stream of results that honors
// the query's ordering.
package merge

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/plan"
	"github.com/jrife/xpquery/query/continuation"
	"github.com/jrife/xpquery/query/producer"
	"github.com/jrife/xpquery/utils/log"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNoProgress is returned when no producer can yield
	// or fetch an item but the set is not exhausted
	ErrNoProgress = errors.New("merge cannot make progress")
)

// Config configures an Engine
type Config struct {
	// MaxConcurrency bounds the number of fetches in flight.
	// Zero means the number of CPUs.
	MaxConcurrency int
	Logger         *zap.Logger
}

// Engine merges the results of a Set
type Engine struct {
	set      *Set
	plan     plan.Plan
	config   Config
	sem      *semaphore.Weighted
	strategy strategy
	yielded  int64
	logger   *zap.Logger
}

// NewEngine creates an engine. yielded is the number of results
// already returned by earlier executions of the same query.
func NewEngine(set *Set, p plan.Plan, yielded int64, config Config) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = runtime.NumCPU()
	}

	if config.Logger == nil {
		config.Logger = zap.L()
	}

	engine := &Engine{
		set:     set,
		plan:    p,
		config:  config,
		sem:     semaphore.NewWeighted(int64(config.MaxConcurrency)),
		yielded: yielded,
		logger:  config.Logger.With(zap.Stringer("mode", p.Mode)),
	}

	engine.strategy = newStrategy(p)

	return engine, nil
}

func newStrategy(p plan.Plan) strategy {
	var inner strategy = &unordered{}

	if p.Ordered() {
		inner = newOrderBy(p)
	}

	if p.Mode == plan.Top {
		return &top{inner: inner, limit: p.Limit}
	}

	return inner
}

// Set returns the engine's producer set
func (engine *Engine) Set() *Set {
	return engine.set
}

// Yielded returns the number of results returned so far,
// including those returned by earlier executions
func (engine *Engine) Yielded() int64 {
	return engine.yielded
}

// Drain returns up to maxItems results. The second return value
// is true once the query has no more results. On error the
// results gathered so far are returned with it.
func (engine *Engine) Drain(ctx context.Context, maxItems int) ([]document.Document, bool, error) {
	logger := log.WithContext(ctx, engine.logger).With(zap.String("operation", "Drain"), zap.Int("maxItems", maxItems))
	logger.Debug("start")

	items := []document.Document{}

	for len(items) < maxItems {
		if err := ctx.Err(); err != nil {
			return items, false, err
		}

		item, ok, err := engine.strategy.next(ctx, engine)

		if err != nil {
			logger.Debug("failed", zap.Int("items", len(items)), zap.Error(err))

			return items, false, err
		}

		if !ok {
			logger.Debug("return", zap.Int("items", len(items)), zap.Bool("complete", true))

			return items, true, nil
		}

		items = append(items, item)
		engine.yielded++
	}

	complete, err := engine.complete()

	if err != nil {
		return items, false, err
	}

	logger.Debug("return", zap.Int("items", len(items)), zap.Bool("complete", complete))

	return items, complete, nil
}

func (engine *Engine) complete() (bool, error) {
	if engine.plan.Mode == plan.Top && engine.yielded >= engine.plan.Limit {
		return true, nil
	}

	if err := engine.set.Settle(); err != nil {
		return false, err
	}

	return engine.set.Len() == 0, nil
}

// Checkpoint captures the resume point after the last result
// returned by Drain
func (engine *Engine) Checkpoint() (*continuation.Continuation, error) {
	return engine.set.Checkpoint(engine.plan.Fingerprint(), engine.yielded)
}

// fetch runs one fetch for each producer concurrently, bounded
// by MaxConcurrency, and applies the results on this goroutine.
// It returns as soon as ctx ends or a fetch fails.
func (engine *Engine) fetch(ctx context.Context, producers []*producer.Producer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan producer.Result, len(producers))
	launched := 0

	for _, p := range producers {
		if err := ctx.Err(); err != nil {
			return err
		}

		request, err := p.BeginFetch()

		if err != nil {
			return fmt.Errorf("could not begin fetch of %s: %w", p.Range(), err)
		}

		if err := engine.sem.Acquire(ctx, 1); err != nil {
			p.Abandon(request)

			return err
		}

		launched++

		go func(request producer.Request) {
			defer engine.sem.Release(1)

			results <- request.Do(ctx)
		}(request)
	}

	for i := 0; i < launched; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-results:
			if err := result.Producer().Complete(result); err != nil {
				return err
			}
		}
	}

	return nil
}

// strategy picks the next result. It is a closed set:
// unordered, orderBy and top.
type strategy interface {
	next(ctx context.Context, engine *Engine) (document.Document, bool, error)
}
