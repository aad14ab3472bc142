package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithCompany("acme").
		WithTimeZone("America/Guayaquil").
		WithDate("").
		WithEventID("evt1").
		Build()

	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes (empty date skipped), got %d", len(attrs))
	}
	if attrs[0].Key != SpanAttrCompany || attrs[0].Value.AsString() != "acme" {
		t.Errorf("unexpected first attribute %v", attrs[0])
	}
}

func TestStartGoogleAPISpan(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartGoogleAPISpan(context.Background(), ServiceCalendar, OperationCreate)
	if GetTraceID(ctx) == "" || GetSpanID(ctx) == "" {
		t.Error("expected a valid span context")
	}
	SetSpanError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "google.calendar.create" {
		t.Errorf("unexpected span name %s", ended[0].Name())
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status())
	}
}

func TestStartSpan_Success(t *testing.T) {
	recorder := installRecorder(t)

	_, span := StartSpan(context.Background(), "availability.days", NewSpanAttributeBuilder().WithCompany("acme").Build()...)
	SetSpanError(span, nil)
	SetSpanSuccess(span)
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Status().Code != codes.Ok {
		t.Fatalf("expected one ok span, got %+v", ended)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" {
		t.Error("expected empty trace id")
	}
	if GetSpanID(context.Background()) != "" {
		t.Error("expected empty span id")
	}
}
