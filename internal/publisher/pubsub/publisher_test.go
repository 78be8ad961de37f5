package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestBuildMessageInjectsTraceContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg, err := buildMessage(ctx, "lead.created", map[string]any{"lead_id": "l1"})
	require.NoError(t, err)
	assert.Equal(t, "lead.created", msg.Attributes["event"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, "l1", body["lead_id"])

	// Extraction with the W3C propagator recovers the span context.
	carrier := &pubsubCarrier{attrs: msg.Attributes}
	got := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), carrier))
	if _, ok := msg.Attributes["traceparent"]; ok {
		assert.Equal(t, traceID, got.TraceID())
	}
}

func TestBuildMessageRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	_, err := buildMessage(context.Background(), "lead.created", make(chan int))
	require.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	p := &Publisher{cfg: Config{DefaultTopic: "leadwatch-events", Topics: map[string]string{"lead.created": "leads"}}}
	assert.Equal(t, "leads", p.topicFor("lead.created"))
	assert.Equal(t, "leadwatch-events", p.topicFor("other"))
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "x")
	assert.Equal(t, "x", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
