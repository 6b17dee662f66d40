package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus records to a dedicated registry.
type Prometheus struct {
	registry      *prometheus.Registry
	processed     prometheus.Counter
	errors        prometheus.Counter
	notifications *prometheus.CounterVec
	latency       prometheus.Histogram
}

// NewPrometheus registers logpipe collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "logpipe_records_processed_total",
			Help: "Total number of records dispatched through the chain.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "logpipe_chain_errors_total",
			Help: "Total number of records whose chain returned an error.",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logpipe_notifications_total",
			Help: "Notification attempts, labelled by channel and outcome.",
		}, []string{"channel", "status"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logpipe_record_duration_ms",
			Help:    "Time spent dispatching one record, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) RecordProcessed(latency time.Duration) {
	p.processed.Inc()
	p.latency.Observe(float64(latency) / float64(time.Millisecond))
}

func (p *Prometheus) RecordError() {
	p.errors.Inc()
}

func (p *Prometheus) RecordDelivered(channel string) {
	p.notifications.WithLabelValues(channel, "delivered").Inc()
}

func (p *Prometheus) RecordBlocked(channel string) {
	p.notifications.WithLabelValues(channel, "blocked").Inc()
}

func (p *Prometheus) RecordFailed(channel string) {
	p.notifications.WithLabelValues(channel, "failed").Inc()
}

var _ Recorder = (*Prometheus)(nil)
