// Package metrics exposes Prometheus collectors for clear runs and triggers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/toeirei/cachesweep/internal/model"
)

// Recorder holds the run and scheduler collectors.
type Recorder struct {
	runs     *prometheus.CounterVec
	files    prometheus.Counter
	duration *prometheus.HistogramVec
	triggers prometheus.Gauge
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachesweep_clear_runs_total",
				Help: "Total number of finished clear runs by status",
			},
			[]string{"status"},
		),
		files: f.NewCounter(prometheus.CounterOpts{
			Name: "cachesweep_files_deleted_total",
			Help: "Total number of remote files deleted",
		}),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cachesweep_clear_run_duration_seconds",
				Help:    "Clear run duration in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
			},
			[]string{"status"},
		),
		triggers: f.NewGauge(prometheus.GaugeOpts{
			Name: "cachesweep_scheduled_triggers",
			Help: "Number of installed schedule triggers",
		}),
	}
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(status model.RunStatus, filesDeleted int, elapsed time.Duration) {
	r.runs.WithLabelValues(string(status)).Inc()
	if filesDeleted > 0 {
		r.files.Add(float64(filesDeleted))
	}
	r.duration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// SetTriggers records the current number of schedule triggers.
func (r *Recorder) SetTriggers(n int) {
	r.triggers.Set(float64(n))
}
