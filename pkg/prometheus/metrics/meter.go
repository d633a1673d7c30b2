package metrics

import (
	"errors"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

var MetricRegisterErrorMessage = "failed to register metric counter"

const (
	TotalHttpRequestsMetricName    = "http_requests_total"
	TotalHttpResponsesMetricName   = "http_responses_total"
	HttpResponseStatusesMetricName = "http_response_statuses_total"
	HttpResponseTimeMsMetricName   = "http_response_time_seconds"

	ProviderAttemptsMetricName = "aggregator_provider_attempts_total"
	ProviderLatencyMetricName  = "aggregator_provider_attempt_seconds"
	ProvenanceMetricName       = "aggregator_served_total"
	CoalescedMetricName        = "aggregator_coalesced_total"
	PurgedMetricName           = "aggregator_purged_entries_total"
	CacheEntriesMetricName     = "aggregator_cache_entries"
)

// Meter instruments the HTTP surface.
type Meter interface {
	IncTotal(path string, method string, status string)
	IncStatus(path string, method string, status string)
	NewResponseTimeTimer(path string, method string) *prometheus.Timer
	FlushResponseTimeTimer(t *prometheus.Timer)
}

// Recorder instruments the aggregation core.
type Recorder interface {
	ObserveAttempt(provider string, outcome model.Outcome, elapsed time.Duration)
	IncServed(kind model.Kind, provenance model.Provenance)
	IncCoalesced(kind model.Kind)
	AddPurged(n int)
	SetCacheEntries(n int64)
}

type Metrics struct {
	registry *prometheus.Registry

	totalRequestsCounter    *prometheus.CounterVec
	totalResponsesCounter   *prometheus.CounterVec
	responseStatusesCounter *prometheus.CounterVec
	responseTimeMsCounter   *prometheus.HistogramVec

	providerAttemptsCounter *prometheus.CounterVec
	providerLatency         *prometheus.HistogramVec
	servedCounter           *prometheus.CounterVec
	coalescedCounter        *prometheus.CounterVec
	purgedCounter           prometheus.Counter
	cacheEntriesGauge       prometheus.Gauge
}

// New builds the metrics set on its own registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		totalRequestsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: TotalHttpRequestsMetricName,
				Help: "Number of all requests.",
			},
			[]string{"path", "method"},
		),
		totalResponsesCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: TotalHttpResponsesMetricName,
				Help: "Number of all responses.",
			},
			[]string{"path", "method", "status"},
		),
		responseStatusesCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: HttpResponseStatusesMetricName,
				Help: "Status of HTTP response",
			},
			[]string{"path", "method", "status"},
		),
		responseTimeMsCounter: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: HttpResponseTimeMsMetricName,
			Help: "Duration of HTTP requests.",
		}, []string{"path", "method"}),
		providerAttemptsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ProviderAttemptsMetricName,
				Help: "Upstream provider attempts by outcome.",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    ProviderLatencyMetricName,
			Help:    "Duration of upstream provider attempts.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		servedCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ProvenanceMetricName,
				Help: "Served payloads by resource kind and provenance.",
			},
			[]string{"kind", "provenance"},
		),
		coalescedCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: CoalescedMetricName,
				Help: "Callers that joined an in-flight refresh instead of starting one.",
			},
			[]string{"kind"},
		),
		purgedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PurgedMetricName,
			Help: "Entries removed by the TTL purge.",
		}),
		cacheEntriesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: CacheEntriesMetricName,
			Help: "Entries held by the in-memory cache tier.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.totalRequestsCounter,
		m.totalResponsesCounter,
		m.responseStatusesCounter,
		m.responseTimeMsCounter,
		m.providerAttemptsCounter,
		m.providerLatency,
		m.servedCounter,
		m.coalescedCounter,
		m.purgedCounter,
		m.cacheEntriesGauge,
	} {
		if err := m.registry.Register(c); err != nil {
			log.Err(err).Msg(MetricRegisterErrorMessage)
			return nil, errors.New(MetricRegisterErrorMessage)
		}
	}

	return m, nil
}

// Registry is the gatherer exposed on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncTotal method is increments request/response total counters and depends on
// *status* argument (numeric or empty string available).
// If the *status* argument is empty string then will be used request_counter,
// in other way will be used response_counter.
func (m *Metrics) IncTotal(path string, method string, status string) {
	if status != "" {
		m.totalResponsesCounter.WithLabelValues(path, method, status).Inc()
		return
	}
	m.totalRequestsCounter.WithLabelValues(path, method).Inc()
}

func (m *Metrics) IncStatus(path string, method string, status string) {
	m.responseStatusesCounter.WithLabelValues(path, method, status).Inc()
}

func (m *Metrics) NewResponseTimeTimer(path string, method string) *prometheus.Timer {
	return prometheus.NewTimer(m.responseTimeMsCounter.WithLabelValues(path, method))
}

func (m *Metrics) FlushResponseTimeTimer(t *prometheus.Timer) {
	t.ObserveDuration()
}

func (m *Metrics) ObserveAttempt(provider string, outcome model.Outcome, elapsed time.Duration) {
	m.providerAttemptsCounter.WithLabelValues(provider, string(outcome)).Inc()
	if outcome != model.OutcomeConfigError {
		m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) IncServed(kind model.Kind, provenance model.Provenance) {
	m.servedCounter.WithLabelValues(string(kind), string(provenance)).Inc()
}

func (m *Metrics) IncCoalesced(kind model.Kind) {
	m.coalescedCounter.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) AddPurged(n int) {
	m.purgedCounter.Add(float64(n))
}

func (m *Metrics) SetCacheEntries(n int64) {
	m.cacheEntriesGauge.Set(float64(n))
}

// Noop discards everything. Used where metrics are disabled and in tests.
type Noop struct{}

func (Noop) ObserveAttempt(string, model.Outcome, time.Duration) {}
func (Noop) IncServed(model.Kind, model.Provenance)                {}
func (Noop) IncCoalesced(model.Kind)                               {}
func (Noop) AddPurged(int)                                         {}
func (Noop) SetCacheEntries(int64)                                 {}
