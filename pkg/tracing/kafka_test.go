package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderPropagation(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "message_id", Value: []byte("m1")}})
	require.Len(t, headers, 2)
	assert.Equal(t, "message_id", headers[0].Key)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestKafkaHeaderCarrierOverwrites(t *testing.T) {
	carrier := &kafkaHeaderCarrier{headers: []kafka.Header{{Key: traceParentHeader, Value: []byte("old")}}}
	carrier.Set(traceParentHeader, "new")
	assert.Equal(t, "new", carrier.Get(traceParentHeader))
	assert.Equal(t, []string{traceParentHeader}, carrier.Keys())
}

func TestStartConsumeSpanContinuesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	pubCtx, pubSpan := StartPublishSpan(context.Background(), "filter_changes")
	headers := InjectTraceContext(pubCtx, nil)
	pubSpan.End()

	_, span := StartConsumeSpan(context.Background(), kafka.Message{Topic: "filter_changes", Headers: headers, Offset: 7})
	defer span.End()

	assert.Equal(t, pubSpan.SpanContext().TraceID(), span.SpanContext().TraceID())
	assert.NotEqual(t, pubSpan.SpanContext().SpanID(), span.SpanContext().SpanID())
}
