package bsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports sequence execution metrics to Prometheus.
type MetricsObserver struct {
	sequencesStarted   prometheus.Counter
	sequencesCompleted *prometheus.CounterVec
	tasksCompleted     *prometheus.CounterVec
	keyCollisions      prometheus.Counter
	stageDuration      prometheus.Histogram
}

// NewMetricsObserver creates an observer registered against reg. Passing
// a nil registerer leaves the collectors unregistered, which is useful
// when the caller wants to register them elsewhere.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		sequencesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bsync",
			Name:      "sequences_started_total",
			Help:      "Number of sequences started.",
		}),
		sequencesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bsync",
			Name:      "sequences_completed_total",
			Help:      "Number of sequences completed, by terminal status.",
		}, []string{"status"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bsync",
			Name:      "tasks_completed_total",
			Help:      "Number of task completions processed, by status.",
		}, []string{"status"}),
		keyCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bsync",
			Name:      "result_key_collisions_total",
			Help:      "Number of merged result keys that overwrote an existing key.",
		}),
		stageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bsync",
			Name:      "stage_duration_seconds",
			Help:      "Wall time from stage dispatch to its last task completion.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.sequencesStarted,
			m.sequencesCompleted,
			m.tasksCompleted,
			m.keyCollisions,
			m.stageDuration,
		)
	}

	return m
}

// SequenceStarted implements Observer.
func (m *MetricsObserver) SequenceStarted(string, int) {
	m.sequencesStarted.Inc()
}

// StageStarted implements Observer.
func (m *MetricsObserver) StageStarted(string, int, int) {}

// TaskCompleted implements Observer.
func (m *MetricsObserver) TaskCompleted(_ string, _ int, err error) {
	m.tasksCompleted.WithLabelValues(statusLabel(err)).Inc()
}

// KeyCollision implements Observer.
func (m *MetricsObserver) KeyCollision(string, string) {
	m.keyCollisions.Inc()
}

// StageCompleted implements Observer.
func (m *MetricsObserver) StageCompleted(_ string, _ int, elapsed time.Duration) {
	m.stageDuration.Observe(elapsed.Seconds())
}

// SequenceCompleted implements Observer.
func (m *MetricsObserver) SequenceCompleted(_ string, err error, _ map[string]any, _ time.Duration) {
	m.sequencesCompleted.WithLabelValues(statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
