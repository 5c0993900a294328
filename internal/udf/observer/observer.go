// Package observer defines metrics hooks for UDF compilation and execution.
package observer

import "context"

// MetricsRecorder records pipeline metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, backend string, ok bool, timeMs int64, blobBytes int)
	ObserveRun(ctx context.Context, backend string, exitCode int, wallTimeMs int64, outputBytes int)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, backend string, ok bool, timeMs int64, blobBytes int) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, backend string, exitCode int, wallTimeMs int64, outputBytes int) {
}
