package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name used for bookcal spans.
const TracerName = "github.com/teemow/bookcal"

// Span attribute keys.
const (
	SpanAttrCompany   = "bookcal.company"
	SpanAttrTimeZone  = "bookcal.time_zone"
	SpanAttrDate      = "bookcal.date"
	SpanAttrEventID   = "bookcal.event_id"
	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"
)

// SpanAttributeBuilder helps construct span attributes with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 4)}
}

// WithCompany adds the company attribute.
func (b *SpanAttributeBuilder) WithCompany(company string) *SpanAttributeBuilder {
	if company != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrCompany, company))
	}
	return b
}

// WithTimeZone adds the time zone attribute.
func (b *SpanAttributeBuilder) WithTimeZone(zone string) *SpanAttributeBuilder {
	if zone != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrTimeZone, zone))
	}
	return b
}

// WithDate adds the civil date attribute.
func (b *SpanAttributeBuilder) WithDate(date string) *SpanAttributeBuilder {
	if date != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrDate, date))
	}
	return b
}

// WithEventID adds the calendar event id attribute.
func (b *SpanAttributeBuilder) WithEventID(id string) *SpanAttributeBuilder {
	if id != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrEventID, id))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a span on the global tracer provider.
// The caller ends it with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartGoogleAPISpan starts a client span for a Google API call named
// google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed. Nil is ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the span id of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
