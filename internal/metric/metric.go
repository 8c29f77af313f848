// Package metric holds the Prometheus instruments of a world host.
//
// Every world owns its own prometheus.Registry so several worlds in one
// process (tests, multi-world hosts) never collide on registration. All
// methods are nil-safe: a nil *Metrics disables instrumentation.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "worldhost"

// Metrics is the set of instruments shared by the scheduler, the registry
// owner and the host systems.
type Metrics struct {
	registry *prometheus.Registry

	tickDuration     prometheus.Histogram
	phaseDuration    *prometheus.HistogramVec // By phase
	callbackFailures *prometheus.CounterVec   // By phase
	registrySize     prometheus.Gauge
	trashSize        prometheus.Gauge
	trashPurged      prometheus.Counter

	dirtyBatch       prometheus.Histogram
	replicationBytes prometheus.Counter
	rejectedWrites   prometheus.Counter

	persistDuration prometheus.Histogram
	persistErrors   prometheus.Counter
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full world tick",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each scheduler phase",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"phase"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "callback_failures_total",
			Help:      "Lifecycle callbacks that panicked, by phase",
		}, []string{"phase"}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "elements",
			Help:      "Live elements registered in the world",
		}),
		trashSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "trash_elements",
			Help:      "Elements held in the trash pending confirmation",
		}),
		trashPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "trash_purged_total",
			Help:      "Trash entries permanently discarded",
		}),
		dirtyBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "batch_members",
			Help:      "Dirty members drained per replication batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		replicationBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "bytes_total",
			Help:      "Encoded replication payload bytes",
		}),
		rejectedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "rejected_writes_total",
			Help:      "Incoming member writes refused by the conflict policy",
		}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "save_duration_seconds",
			Help:      "Duration of a persistence snapshot",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "errors_total",
			Help:      "Failed persistence snapshots",
		}),
	}

	m.registry.MustRegister(
		m.tickDuration,
		m.phaseDuration,
		m.callbackFailures,
		m.registrySize,
		m.trashSize,
		m.trashPurged,
		m.dirtyBatch,
		m.replicationBytes,
		m.rejectedWrites,
		m.persistDuration,
		m.persistErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// CallbackFailed counts a recovered lifecycle callback panic.
func (m *Metrics) CallbackFailed(phase string) {
	if m == nil {
		return
	}
	m.callbackFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) SetRegistrySize(live, trash int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(live))
	m.trashSize.Set(float64(trash))
}

func (m *Metrics) TrashPurged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.trashPurged.Add(float64(n))
}

// ObserveBatch records one drained replication batch.
func (m *Metrics) ObserveBatch(members, bytes int) {
	if m == nil {
		return
	}
	m.dirtyBatch.Observe(float64(members))
	m.replicationBytes.Add(float64(bytes))
}

func (m *Metrics) WriteRejected() {
	if m == nil {
		return
	}
	m.rejectedWrites.Inc()
}

// ObservePersist records one persistence snapshot.
func (m *Metrics) ObservePersist(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(d.Seconds())
	if err != nil {
		m.persistErrors.Inc()
	}
}
