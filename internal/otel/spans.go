package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for TaskVault spans.
var (
	AttrProjectID   = attribute.Key("taskvault.project.id")
	AttrEntityKind  = attribute.Key("taskvault.entity.kind")
	AttrEntityID    = attribute.Key("taskvault.entity.id")
	AttrStep        = attribute.Key("taskvault.step")
	AttrBackend     = attribute.Key("taskvault.backend")
	AttrDocumentID  = attribute.Key("taskvault.document.id")
	AttrActingUser  = attribute.Key("taskvault.acting_user")
	AttrCompensated = attribute.Key("taskvault.compensated")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (OTLP, file export).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
