package infrastructure

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yourusername/yt-extract-go/internal/domain"
)

// PrometheusRecorder implements domain.AttemptRecorder with Prometheus collectors.
// Metric names are prefixed with the configured namespace.
type PrometheusRecorder struct {
	attemptsTotal   *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	inProgress      *prometheus.GaugeVec
}

// NewPrometheusRecorder creates the attempt collectors and registers them with reg
func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Download attempts by mode and terminal state",
			},
			[]string{"mode", "state"},
		),
		// attempts run from seconds to tens of minutes
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of finished download attempts",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"mode"},
		),
		inProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "attempts_in_progress",
				Help:      "Download attempts currently running",
			},
			[]string{"mode"},
		),
	}

	for _, c := range []prometheus.Collector{r.attemptsTotal, r.durationSeconds, r.inProgress} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	for _, mode := range []domain.Mode{domain.ModeVideo, domain.ModeAudio} {
		r.inProgress.WithLabelValues(string(mode)).Set(0)
	}
	return r, nil
}

// AttemptStarted marks an attempt as running
func (r *PrometheusRecorder) AttemptStarted(mode domain.Mode) {
	r.inProgress.WithLabelValues(string(mode)).Inc()
}

// AttemptFinished records the outcome of an attempt that reached the tool.
// Rejected attempts never started and only bump the counter.
func (r *PrometheusRecorder) AttemptFinished(mode domain.Mode, state domain.AttemptState, seconds float64) {
	r.attemptsTotal.WithLabelValues(string(mode), string(state)).Inc()
	if state == domain.StateRejected {
		return
	}
	r.inProgress.WithLabelValues(string(mode)).Dec()
	r.durationSeconds.WithLabelValues(string(mode)).Observe(seconds)
}
