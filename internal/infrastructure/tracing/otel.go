package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

// InstrumentationName identifies opgraph spans.
const InstrumentationName = "github.com/alexisbeaulieu97/opgraph"

// Tracer implements ports.Tracer with OpenTelemetry.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a tracer backed by provider, or by the global provider when nil.
func New(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(InstrumentationName)}
}

// StartSpan starts a span. Attributes are key/value pairs; the correlation ID
// in ctx, if any, is added as correlation_id.
func (t *Tracer) StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, ports.Span) {
	attrs := toAttributes(attributes)
	if id := ports.GetCorrelationID(ctx); id != "" {
		attrs = append(attrs, attribute.String("correlation_id", id))
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// Span adapts an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// SetAttribute implements ports.Span.
func (s *Span) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attributeOf(key, value))
}

// SetStatus implements ports.Span.
func (s *Span) SetStatus(status ports.SpanStatus, message string) {
	switch status {
	case ports.SpanStatusError:
		s.span.SetStatus(codes.Error, message)
	case ports.SpanStatusOK:
		s.span.SetStatus(codes.Ok, "")
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

// End implements ports.Span.
func (s *Span) End() {
	s.span.End()
}

func toAttributes(kv []interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "" {
			continue
		}
		attrs = append(attrs, attributeOf(key, kv[i+1]))
	}
	return attrs
}

func attributeOf(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

var _ ports.Tracer = (*Tracer)(nil)
