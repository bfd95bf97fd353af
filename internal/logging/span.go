// ABOUTME: Lightweight spans that tag log lines with trace and span ids.
// ABOUTME: Each backend request runs inside one span.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span represents a logical unit of work tied to a trace.
type Span struct {
	ID     string
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a child span from ctx, enriching its logger with tracing
// metadata. It returns the derived context and the span handle.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	parentSpanID := SpanIDFromContext(ctx)
	spanID := uuid.NewString()

	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}

	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{
		ID:     spanID,
		name:   name,
		logger: logger,
		start:  time.Now(),
	}
}

// End emits a completion entry with the span duration and any extra attributes.
func (s *Span) End(attrs ...any) {
	if s == nil {
		return
	}
	args := append([]any{slog.Duration("duration", time.Since(s.start))}, attrs...)
	s.logger.Debug("span completed", args...)
}
