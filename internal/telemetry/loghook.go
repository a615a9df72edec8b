package telemetry

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// TraceHook adds trace_id and span_id fields to entries logged with a
// context that carries a span.
type TraceHook struct{}

func (TraceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire is a no-op for entries logged without a context.
func (TraceHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(entry.Context)
	if sc.HasTraceID() {
		entry.Data["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		entry.Data["span_id"] = sc.SpanID().String()
	}
	return nil
}
