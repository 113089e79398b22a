package transport

import (
	"net/http"
	"time"
)

// Options configures the HTTP transport.
//
// Defaults:
// - MaxRetries:     3 (network errors, 429 and 5xx only)
// - InitialBackoff: 500ms, exponential
// - Timeout:        30s per attempt
// - HTTPClient:     otelhttp-instrumented default transport
type Options struct {
	HTTPClient *http.Client
	Header     http.Header

	MaxRetries     int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Header:         http.Header{},
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

func WithHTTPClient(c *http.Client) Option      { return func(o *Options) { o.HTTPClient = c } }
func WithMaxRetries(n int) Option               { return func(o *Options) { o.MaxRetries = n } }
func WithInitialBackoff(d time.Duration) Option { return func(o *Options) { o.InitialBackoff = d } }
func WithTimeout(d time.Duration) Option        { return func(o *Options) { o.Timeout = d } }

func WithHeader(key, value string) Option {
	return func(o *Options) { o.Header.Add(key, value) }
}

func WithBearerToken(token string) Option {
	return func(o *Options) {
		if token != "" {
			o.Header.Set("Authorization", "bearer "+token)
		}
	}
}
