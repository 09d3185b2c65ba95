package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "clinic.appointment.booked.v1", Key: []byte("abc")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "abc" || meta.EventType != "clinic.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = EventMeta{EventID: "evt-1", EventType: "clinic.appointment.cancelled.v1"}.Headers()
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "clinic.appointment.cancelled.v1" {
		t.Fatalf("unexpected meta from headers %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatal("trace id not propagated")
	}
}
