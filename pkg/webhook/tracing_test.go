package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/parleyhq/parley/pkg/store"
)

// recordSpans installs a recording tracer provider for the duration of the
// test and returns the recorder.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestProcess_SpanCarriesMeetingID(t *testing.T) {
	recorder := recordSpans(t)

	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusUpcoming}
	f.store.agents["a1"] = &store.Agent{ID: "a1", Instruction: "teach"}

	err := f.svc.Process(context.Background(), SessionStartedEvent{MeetingID: "m1"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String(AttrEventType, string(EventSessionStarted)))
	assert.Contains(t, attrs, attribute.String(AttrMeetingID, "m1"))
}

func TestProcess_SpanCarriesChannelID(t *testing.T) {
	recorder := recordSpans(t)

	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusCompleted}
	f.store.agents["a1"] = &store.Agent{ID: "a1", Name: "Planner"}

	err := f.svc.Process(context.Background(), MessageNewEvent{
		UserID:    "u1",
		ChannelID: "m1",
		Text:      "hello?",
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String(AttrChannelID, "m1"))
}
