// Package metrics exposes Prometheus collectors for task activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ntbk"

// Recorder holds the task collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	submitted prometheus.Counter
	outcomes  *prometheus.CounterVec
	attempts  prometheus.Histogram
	fallbacks *prometheus.CounterVec
	cancels   prometheus.Counter
	inflight  prometheus.Gauge
	duration  *prometheus.HistogramVec
}

// New builds a Recorder on its own registry, so several clients (or tests)
// never collide on registration.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "submitted_total",
			Help:      "Tasks accepted by Submit.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "outcomes_total",
			Help:      "Terminal task states by status and source.",
		}, []string{"status", "source"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "attempts",
			Help:      "Remote attempts made per dispatch.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "generated_total",
			Help:      "Fallback resolutions by intent.",
		}, []string{"intent"}),
		cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "cancelled_total",
			Help:      "Tasks cancelled before reaching a result.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "dispatches_inflight",
			Help:      "Dispatches holding a concurrency slot.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Time from submit to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	reg.MustRegister(r.submitted, r.outcomes, r.attempts, r.fallbacks, r.cancels, r.inflight, r.duration)
	return r
}

// Submitted counts an accepted task.
func (r *Recorder) Submitted() {
	if r == nil {
		return
	}
	r.submitted.Inc()
}

// Outcome records a terminal state reached by a dispatch.
func (r *Recorder) Outcome(status, source string, attempts int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	r.outcomes.WithLabelValues(status, source).Inc()
	r.attempts.Observe(float64(attempts))
	r.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// Fallback counts a fallback resolution for intent.
func (r *Recorder) Fallback(intent string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(intent).Inc()
}

// Cancelled counts a successful cancel.
func (r *Recorder) Cancelled() {
	if r == nil {
		return
	}
	r.cancels.Inc()
}

// DispatchStarted and DispatchDone track slot usage.
func (r *Recorder) DispatchStarted() {
	if r == nil {
		return
	}
	r.inflight.Inc()
}

func (r *Recorder) DispatchDone() {
	if r == nil {
		return
	}
	r.inflight.Dec()
}

// Registry exposes the underlying registry for additional collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
