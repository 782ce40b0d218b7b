package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	sourceLatency *prometheus.HistogramVec
	sourceErrors  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	requests      prometheus.Histogram
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	activeClients prometheus.Gauge
}

// New creates a recorder registered on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		sourceLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenpulse_source_request_duration_seconds",
				Help:    "Latency of upstream feed requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		sourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_source_request_failures_total",
				Help: "Failed upstream feed requests",
			},
			[]string{"source"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_cache_lookups_total",
				Help: "Cache lookups by scope and result",
			},
			[]string{"scope", "result"},
		),
		requests: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tokenpulse_aggregation_duration_seconds",
				Help:    "Duration of aggregation requests",
				Buckets: prometheus.DefBuckets,
			},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_ws_messages_sent_total",
				Help: "Messages delivered to realtime clients",
			},
			[]string{"type"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		activeClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tokenpulse_ws_active_clients",
				Help: "Currently connected realtime clients",
			},
		),
	}
}

func (r *Recorder) ObserveSourceLatency(source string, d time.Duration, ok bool) {
	r.sourceLatency.WithLabelValues(source).Observe(d.Seconds())
	if !ok {
		r.sourceErrors.WithLabelValues(source).Inc()
	}
}

func (r *Recorder) RecordCacheLookup(scope string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(scope, result).Inc()
}

func (r *Recorder) ObserveRequest(d time.Duration) {
	r.requests.Observe(d.Seconds())
}

// RecordMessageSent counts one outbound realtime message of the given type.
func (r *Recorder) RecordMessageSent(kind string) {
	r.messagesSent.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetActiveClients(n int) {
	r.activeClients.Set(float64(n))
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveSourceLatency(string, time.Duration, bool) {}
func (Nop) RecordCacheLookup(string, bool)                   {}
func (Nop) ObserveRequest(time.Duration)                     {}
func (Nop) RecordMessageSent(string)                         {}
func (Nop) RecordError(string)                               {}
func (Nop) SetActiveClients(int)                             {}
