package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if providers != nil {
		t.Error("Expected nil providers when disabled")
	}
	if err := ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, &bytes.Buffer{})); err != nil {
		t.Errorf("Shutdown of nil providers should succeed, got %v", err)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "tasks.submit")
	span.SetAttributes(attribute.String("task.id", "TASK-000001"))
	EndSpan(span, errors.New("wrong state"))

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("Expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", ended[0].Status().Code)
	}
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span leaves logger untouched", func(t *testing.T) {
		if UpdateLoggerWithTraceContext(context.Background(), logger) != logger {
			t.Error("Expected the same logger without an active span")
		}
	})

	t.Run("recording span adds ids", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		UpdateLoggerWithTraceContext(ctx, logger).Info("traced")

		var fields map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if fields["trace_id"] != span.SpanContext().TraceID().String() {
			t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), fields["trace_id"])
		}
	})
}
