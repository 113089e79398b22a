package pager

import "github.com/hanpama/graphpager/internal/query"

// Options configures a Runner.
//
// Defaults:
// - Concurrency: 4 queries in flight per wave
// - Handler:     none (nodes are only counted)
// - RateFloor:   0 (never stop early)
type Options struct {
	Concurrency int
	Handler     query.PerNodeFunc
	RateFloor   int
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Concurrency: 4}
}

// WithConcurrency bounds how many queries of one wave are in flight.
func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

// WithHandler receives the output of queries that carry no callback of their own.
func WithHandler(fn query.PerNodeFunc) Option { return func(o *Options) { o.Handler = fn } }

// WithRateFloor stops the run before the next wave once the reported
// remaining budget drops below n.
func WithRateFloor(n int) Option { return func(o *Options) { o.RateFloor = n } }
