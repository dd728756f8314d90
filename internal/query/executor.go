// Package query runs warehouse queries through a ttl cache.
package query

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TobiSchelling/resultsdash/internal/cache"
	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

// Querier executes a query against a data source.
type Querier interface {
	Query(ctx context.Context, query string) (*warehouse.Table, error)
}

// Metrics counts cache behaviour and warehouse latency.
type Metrics struct {
	Hits     prometheus.Counter
	Misses   prometheus.Counter
	Errors   prometheus.Counter
	Duration prometheus.Histogram
}

// NewMetrics creates the executor metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "resultsdash",
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Queries answered from the result cache.",
		}),
		Misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "resultsdash",
			Subsystem: "query",
			Name:      "cache_misses_total",
			Help:      "Queries that had to contact the warehouse.",
		}),
		Errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "resultsdash",
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Warehouse queries that failed.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resultsdash",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Warehouse query latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// Executor answers queries from its cache and falls back to the source on
// a miss. Failed queries are never cached.
type Executor struct {
	source  Querier
	cache   *cache.Cache[*warehouse.Table]
	logger  *zap.SugaredLogger
	metrics *Metrics
	group   singleflight.Group
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the executor metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor reading from source through c.
func NewExecutor(source Querier, c *cache.Cache[*warehouse.Table], opts ...Option) *Executor {
	e := &Executor{
		source: source,
		cache:  c,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Run returns the result of queryText, served from cache while fresh.
//
// Concurrent misses for the same text share one warehouse round trip. The
// shared call is detached from any single caller's cancellation; each caller
// stops waiting when its own ctx is done. This is best effort: a caller
// arriving after that round trip finished but before the result was stored
// can still issue its own.
func (e *Executor) Run(ctx context.Context, queryText string) (*warehouse.Table, error) {
	if t, ok := e.cache.Get(queryText); ok {
		e.metrics.Hits.Inc()
		e.logger.Debugw("query cache hit", "query", queryText)
		return t, nil
	}
	e.metrics.Misses.Inc()

	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(queryText, func() (any, error) {
		start := time.Now()
		t, err := e.source.Query(flightCtx, queryText)
		e.metrics.Duration.Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.Errors.Inc()
			return nil, err
		}
		t.FetchedAt = e.cache.Clock().Now()
		e.cache.Set(queryText, t)
		e.logger.Debugw("query executed", "query", queryText, "rows", t.Len(), "elapsed", time.Since(start))
		return t, nil
	})

	select {
	case <-ctx.Done():
		e.logger.Debugw("caller stopped waiting for query", "query", queryText, "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			e.logger.Errorw("query failed", "query", queryText, "error", res.Err)
			return nil, res.Err
		}
		if res.Shared {
			e.logger.Debugw("query result shared with concurrent caller", "query", queryText)
		}
		return res.Val.(*warehouse.Table), nil
	}
}

// Age reports how long ago queryText was fetched, if it is cached.
func (e *Executor) Age(queryText string) (time.Duration, bool) {
	return e.cache.Age(queryText)
}

// TTL returns the cache ttl.
func (e *Executor) TTL() time.Duration {
	return e.cache.TTL()
}
