package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graphpager/internal/dispatch"
	"github.com/hanpama/graphpager/internal/logging"
	"github.com/hanpama/graphpager/internal/query"
	"github.com/hanpama/graphpager/internal/reqid"
)

// ErrRateExhausted is returned when the remaining budget fell below the
// configured floor.
var ErrRateExhausted = errors.New("pager: rate limit budget exhausted")

// Doer sends query text and returns the decoded response payload.
type Doer interface {
	Do(ctx context.Context, name, text string) (any, error)
}

// Stats summarizes a finished run.
type Stats struct {
	RunID     string
	Queries   int
	Waves     int
	Nodes     int
	RateLimit *query.RateLimit
	Duration  time.Duration
}

// Runner issues queries and their continuations until none remain.
type Runner struct {
	client Doer
	opts   *Options
}

func New(client Doer, opts ...Option) *Runner {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return &Runner{client: client, opts: o}
}

// Run sends the queries concurrently, then every continuation they produced,
// wave by wave. Callbacks of all queries run one at a time. The first error
// cancels the run.
func (r *Runner) Run(ctx context.Context, queries ...*query.Query) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString()}
	logger := logging.Ctx(ctx).With().Str("run", stats.RunID).Logger()
	ctx = logger.WithContext(ctx)

	serial := dispatch.NewSerial()
	defer serial.Close()

	var nodes atomic.Int64
	wave := make([]*query.Query, 0, len(queries))
	for _, q := range queries {
		wave = append(wave, q.Rebind(serial.Wrap(r.counting(q.PerNode(), &nodes))))
	}

	var (
		mu   sync.Mutex
		last *query.RateLimit
	)
	for len(wave) > 0 {
		if err := ctx.Err(); err != nil {
			return r.finish(stats, &nodes, last, start), err
		}
		if last != nil && r.opts.RateFloor > 0 && last.Remaining < r.opts.RateFloor {
			return r.finish(stats, &nodes, last, start), fmt.Errorf("%w: %d remaining, resets at %s", ErrRateExhausted, last.Remaining, last.ResetAt)
		}
		stats.Waves++
		logger.Debug().Int("wave", stats.Waves).Int("queries", len(wave)).Msg("issuing wave")

		var next []*query.Query
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Concurrency)
		for _, q := range wave {
			g.Go(func() error {
				conts, rl, err := r.issue(gctx, q)
				mu.Lock()
				defer mu.Unlock()
				stats.Queries++
				if rl != nil {
					last = rl
				}
				next = append(next, conts...)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return r.finish(stats, &nodes, last, start), err
		}
		wave = next
	}

	stats = r.finish(stats, &nodes, last, start)
	logger.Info().Int("queries", stats.Queries).Int("nodes", stats.Nodes).Dur("took", stats.Duration).Msg("run complete")
	return stats, nil
}

func (r *Runner) issue(ctx context.Context, q *query.Query) ([]*query.Query, *query.RateLimit, error) {
	ctx, rid := reqid.NewContext(ctx)
	logging.Ctx(ctx).Trace().Int64("req", rid).Str("query", q.Name()).Int("cost", q.NodeCost()).Msg("sending query")

	payload, err := r.client.Do(ctx, q.Name(), q.QueryText())
	if err != nil {
		return nil, nil, fmt.Errorf("pager: query %q: %w", q.Name(), err)
	}

	var rl *query.RateLimit
	if v, ok := query.ParseRateLimit(payload); ok {
		rl = &v
		logging.Ctx(ctx).Debug().
			Str("query", q.Name()).
			Int("cost", v.Cost).
			Int("remaining", v.Remaining).
			Int("limit", v.Limit).
			Str("resetAt", v.ResetAt).
			Msg("rate limit")
	}

	conts, err := q.ProcessResponse(ctx, payload)
	if err != nil {
		return nil, rl, err
	}
	return conts, rl, nil
}

// counting wraps the callback of a query so nodes are tallied on the serial
// worker before reaching the user handler.
func (r *Runner) counting(fn query.PerNodeFunc, nodes *atomic.Int64) query.PerNodeFunc {
	if fn == nil {
		fn = r.opts.Handler
	}
	return func(ctx context.Context, out query.Output) error {
		if out.Kind == query.OutputNode {
			nodes.Add(1)
		}
		if fn == nil {
			return nil
		}
		return fn(ctx, out)
	}
}

func (r *Runner) finish(s Stats, nodes *atomic.Int64, last *query.RateLimit, start time.Time) Stats {
	s.Nodes = int(nodes.Load())
	s.RateLimit = last
	s.Duration = time.Since(start)
	return s
}
