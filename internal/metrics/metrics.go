// Package metrics exposes exchange activity to Prometheus:
//
//	exchange_trades_total{direction,outcome}    executions by result
//	exchange_quotes_total{direction,outcome}    quotes by result
//	exchange_settle_duration_seconds{direction} execute latency, lock wait included
//	exchange_settle_retries_total               commits retried after a write conflict
//	exchange_http_requests_total{route,status}  API requests
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creatorExchange/internal/model"
)

// Recorder owns the exchange collectors and the registry they live in.
type Recorder struct {
	registry *prometheus.Registry

	trades   *prometheus.CounterVec
	quotes   *prometheus.CounterVec
	settle   *prometheus.HistogramVec
	retries  prometheus.Counter
	requests *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_trades_total",
				Help: "Trade executions by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_quotes_total",
				Help: "Quotes by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		settle: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_settle_duration_seconds",
				Help:    "Time to execute a trade, including the wait for the pool lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"direction"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "exchange_settle_retries_total",
				Help: "Settlements retried after a storage write conflict",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}
	r.registry.MustRegister(r.trades, r.quotes, r.settle, r.retries, r.requests)
	r.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) Quoted(direction model.Direction, outcome string) {
	r.quotes.WithLabelValues(string(direction), outcome).Inc()
}

func (r *Recorder) Settled(direction model.Direction, outcome string, elapsed time.Duration) {
	r.trades.WithLabelValues(string(direction), outcome).Inc()
	r.settle.WithLabelValues(string(direction)).Observe(elapsed.Seconds())
}

func (r *Recorder) Retried() {
	r.retries.Inc()
}

// Request counts one API request against its route template.
func (r *Recorder) Request(route string, status int) {
	r.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
