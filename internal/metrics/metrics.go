// Package metrics exports pipeline counters to Prometheus
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ibs-source/logship/internal/policy"
	"github.com/ibs-source/logship/internal/sink"
)

const namespace = "logship"

// Collector turns sink and policy notifications into Prometheus metrics
type Collector struct {
	eventsDropped   *prometheus.CounterVec
	batches         *prometheus.CounterVec
	events          *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	inFlight        prometheus.Gauge
}

// Ensure Collector observes both layers
var (
	_ sink.Observer   = (*Collector)(nil)
	_ policy.Observer = (*Collector)(nil)
)

// NewCollector creates the metrics and registers them with reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped before batching, by reason",
		}, []string{"reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batches by final status",
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events in completed batches by final status",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_attempts_total",
			Help:      "HTTP request attempts by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of single HTTP request attempts",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_in_flight",
			Help:      "Batches submitted and not yet completed",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.eventsDropped, c.batches, c.events, c.attempts, c.requestDuration, c.inFlight,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EventDropped counts an event the encoder or the buffer refused
func (c *Collector) EventDropped(reason string) {
	c.eventsDropped.WithLabelValues(reason).Inc()
}

// BatchSubmitted tracks a batch entering the request layer
func (c *Collector) BatchSubmitted(sink.BatchInfo) {
	c.inFlight.Inc()
}

// BatchCompleted records the terminal status of a batch
func (c *Collector) BatchCompleted(result sink.BatchResult) {
	c.inFlight.Dec()
	status := result.Status.String()
	c.batches.WithLabelValues(status).Inc()
	c.events.WithLabelValues(status).Add(float64(result.Events))
}

// RequestAttempt records one transport attempt
func (c *Collector) RequestAttempt(outcome string, elapsed time.Duration) {
	c.attempts.WithLabelValues(outcome).Inc()
	c.requestDuration.Observe(elapsed.Seconds())
}
