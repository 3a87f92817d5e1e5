package tracking

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per top-level tracking operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span around a tracking operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is an open span closed with the operation's outcome.
type TraceSpan interface {
	End(err error)
}

// observed wraps a state-manager operation with the configured tracer and
// metrics recorder.
func (sm *StateManager) observed(ctx context.Context, operation string, fn func() error) error {
	var span TraceSpan
	if sm.tracer != nil {
		ctx, span = sm.tracer.Start(ctx, operation)
	}
	start := time.Now()
	err := fn()
	if sm.metrics != nil {
		sm.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	if span != nil {
		span.End(err)
	}
	return err
}
