package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanpama/graphpager/internal/eventbus"
	"github.com/hanpama/graphpager/internal/events"
)

// Collectors holds the metrics fed from bus events.
type Collectors struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	ScannedNodes  *prometheus.CounterVec
	Continuations *prometheus.CounterVec
	ScanErrors    *prometheus.CounterVec
	RateRemaining *prometheus.GaugeVec
}

// New creates the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpager_http_requests_total",
				Help: "Query attempts posted to the endpoint, by status code",
			},
			[]string{"query", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graphpager_http_request_duration_seconds",
				Help:    "Duration of query attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"query"},
		),
		ScannedNodes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpager_scanned_nodes_total",
				Help: "Nodes reported while scanning responses",
			},
			[]string{"query"},
		),
		Continuations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpager_continuations_total",
				Help: "Follow-up queries produced for further pages",
			},
			[]string{"query"},
		),
		ScanErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphpager_scan_errors_total",
				Help: "Responses that failed to scan",
			},
			[]string{"query"},
		),
		RateRemaining: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "graphpager_rate_limit_remaining",
				Help: "Remaining budget reported by the last rateLimit block",
			},
			[]string{"query"},
		),
	}
}

// Subscribe feeds the collectors from the global bus.
func (c *Collectors) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			c.HTTPRequests.WithLabelValues(e.Query, status(e)).Inc()
			c.HTTPDuration.WithLabelValues(e.Query).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ScanFinish) {
			c.ScannedNodes.WithLabelValues(e.Query).Add(float64(e.Nodes))
			c.Continuations.WithLabelValues(e.Query).Add(float64(e.Continuations))
			if e.Err != nil {
				c.ScanErrors.WithLabelValues(e.Query).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.RateLimit) {
			c.RateRemaining.WithLabelValues(e.Query).Set(float64(e.Remaining))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func status(e events.HTTPFinish) string {
	if e.Status == 0 {
		return "error"
	}
	return strconv.Itoa(e.Status)
}

// Handler exposes g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
