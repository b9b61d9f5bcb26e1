// Package metrics exposes the scheduler's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records registration outcomes, slot generation and HTTP
// latency.  It satisfies service.Recorder and middleware.LatencyObserver.
type Collector struct {
	registrations  *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	cancellations  prometheus.Counter
	slotsGenerated *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permanences_registrations_total",
			Help: "Committed registrations by kind (created, reactivated).",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permanences_registration_rejections_total",
			Help: "Refused registration or cancellation attempts by reason.",
		}, []string{"reason"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permanences_cancellations_total",
			Help: "Committed cancellations.",
		}),
		slotsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permanences_slots_generated_total",
			Help: "Slots considered by the generator, by outcome (created, skipped).",
		}, []string{"outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "permanences_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.registrations,
		c.rejections,
		c.cancellations,
		c.slotsGenerated,
		c.httpLatency,
	)
	return c
}

func (c *Collector) RegistrationCommitted(kind string) {
	c.registrations.WithLabelValues(kind).Inc()
}

func (c *Collector) RegistrationRejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) RegistrationCancelled() { c.cancellations.Inc() }

func (c *Collector) SlotsGenerated(created, skipped int) {
	c.slotsGenerated.WithLabelValues("created").Add(float64(created))
	c.slotsGenerated.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveHTTP records one request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
