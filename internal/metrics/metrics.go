// Package metrics holds Prometheus counters for reading attempts and speech capture.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "readfluent"

// Registry collects every readfluent metric. The CLI is short-lived, so the
// registry is exported to a node_exporter textfile instead of being scraped.
var Registry = prometheus.NewRegistry()

// Attempt metrics (incremented by the attempt controller).
var (
	AttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_total",
		Help:      "Finished reading attempts.",
	}, []string{"mode"})

	AttemptScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attempt_score_wcpm",
		Help:      "Words correct per minute per attempt.",
		Buckets:   prometheus.LinearBuckets(0, 10, 16), // 0 → 150 wcpm
	}, []string{"mode"})

	AttemptsInterruptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_interrupted_total",
		Help:      "Attempts aborted because speech capture stopped.",
	})

	FallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "simulation_fallbacks_total",
		Help:      "Attempts that fell back to simulation.",
	}, []string{"reason"})
)

// Capture metrics (incremented by the recognition session).
var (
	RecognitionErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recognition_errors_total",
		Help:      "Recognition errors by kind.",
	}, []string{"kind"})

	RecognitionRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recognition_restarts_total",
		Help:      "Recognition stream restarts by outcome.",
	}, []string{"outcome"})

	AudioChunksDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_chunks_dropped_total",
		Help:      "Microphone chunks dropped because the engine fell behind.",
	})
)

func init() {
	Registry.MustRegister(
		AttemptsTotal,
		AttemptScore,
		AttemptsInterruptedTotal,
		FallbacksTotal,
		RecognitionErrorsTotal,
		RecognitionRestartsTotal,
		AudioChunksDroppedTotal,
	)
}

// ObserveAttempt records a finished attempt.
func ObserveAttempt(mode string, score int) {
	AttemptsTotal.WithLabelValues(mode).Inc()
	AttemptScore.WithLabelValues(mode).Observe(float64(score))
}

// ObserveRestart records a restart outcome.
func ObserveRestart(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	RecognitionRestartsTotal.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry in text exposition format to path.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
