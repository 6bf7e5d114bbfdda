package logger

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sampler counters live on the default registry so the /metrics endpoint
// exposes drop rates without extra wiring.
var (
	logsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulntrack",
			Subsystem: "logger",
			Name:      "logs_processed_total",
			Help:      "Log records seen by the sampler, before any drop decision.",
		},
		[]string{"level"},
	)

	logsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulntrack",
			Subsystem: "logger",
			Name:      "logs_dropped_total",
			Help:      "Log records suppressed by sampling.",
		},
		[]string{"level"},
	)
)

func recordProcessed(level slog.Level) {
	logsProcessedTotal.WithLabelValues(levelLabel(level)).Inc()
}

func recordDropped(level slog.Level) {
	logsDroppedTotal.WithLabelValues(levelLabel(level)).Inc()
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
