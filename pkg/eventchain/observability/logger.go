// Package observability provides structured logging, metrics, and tracing
// for the event-chain kernel.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger. Returns a new logger carrying
// run_id and seed fields on every record.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", 42)
//	enriched.Info("leg committed") // includes run_id and seed
func EnrichLogger(logger *slog.Logger, runID string, seed uint64) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.Uint64("seed", seed),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, seed uint64) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Uint64("seed", seed),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, legs uint64, eventTime, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Uint64("legs", legs),
		slog.Float64("event_time", eventTime),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, runID string, err error, legs uint64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Uint64("legs", legs),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogLegCommitted logs a committed leg.
func LogLegCommitted(logger *slog.Logger, kind string, eventTime float64) {
	if logger == nil {
		return
	}
	logger.Debug("leg committed",
		slog.String("kind", kind),
		slog.Float64("event_time", eventTime),
	)
}

// LogCandidateRejected logs a bounding rejection that goes back to the
// scheduler with a later candidate time.
func LogCandidateRejected(logger *slog.Logger, kind string, eventTime float64) {
	if logger == nil {
		return
	}
	logger.Debug("candidate rejected, rescheduling",
		slog.String("kind", kind),
		slog.Float64("event_time", eventTime),
	)
}

// LogSnapshot logs a saved run snapshot.
func LogSnapshot(logger *slog.Logger, runID string, legs uint64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.String("run_id", runID),
		slog.Uint64("legs", legs),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSnapshotError logs snapshot failure (non-fatal).
func LogSnapshotError(logger *slog.Logger, runID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogUnusedOutput warns about a registered output no handler writes to.
func LogUnusedOutput(logger *slog.Logger, name string) {
	if logger == nil {
		return
	}
	logger.Warn("output never written to",
		slog.String("output", name),
	)
}

// TimedOperation measures the duration of an operation. Returns a function
// that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
