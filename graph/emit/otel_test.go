package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestEmitter(t *testing.T) (*OTelEmitter, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOTelEmitter(tp.Tracer("test")), recorder
}

func TestOTelEmitter_SpanPerEvent(t *testing.T) {
	emitter, recorder := newTestEmitter(t)

	emitter.Emit(Event{RunID: "run-1", Step: 2, NodeID: "mechanic", Msg: "node_end"})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "node_end" {
		t.Errorf("span named %q, want event msg", span.Name())
	}

	attrs := make(map[string]interface{})
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["opsmend.run_id"] != "run-1" {
		t.Errorf("run_id attribute missing: %#v", attrs)
	}
	if attrs["opsmend.step"] != int64(2) {
		t.Errorf("step attribute missing: %#v", attrs)
	}
	if attrs["opsmend.node_id"] != "mechanic" {
		t.Errorf("node_id attribute missing: %#v", attrs)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	emitter, recorder := newTestEmitter(t)

	emitter.Emit(Event{
		RunID: "run-1", Msg: "run_end",
		Meta: map[string]interface{}{"status": "aborted", "error": "step limit exceeded"},
	})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Error("expected recorded error event on span")
	}

	attrs := make(map[string]interface{})
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["opsmend.meta.status"] != "aborted" {
		t.Errorf("meta attributes missing: %#v", attrs)
	}
}
