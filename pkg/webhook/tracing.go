package webhook

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name for webhook processing.
const TracerName = "webhook"

// Span attribute keys.
const (
	AttrEventType = "event_type"
	AttrMeetingID = "meeting_id"
	AttrChannelID = "channel_id"
)

// Tracer provides distributed tracing for webhook event processing.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a webhook tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartEventSpan starts a root span for one webhook delivery.
func (t *Tracer) StartEventSpan(ctx context.Context, eventType EventType) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "webhook.event",
		trace.WithAttributes(
			attribute.String(AttrEventType, string(eventType)),
		),
	)
}

// AnnotateMeeting records the resolved meeting id on the active span.
func AnnotateMeeting(ctx context.Context, meetingID string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrMeetingID, meetingID))
}

// AnnotateChannel records the chat channel id on the active span.
func AnnotateChannel(ctx context.Context, channelID string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrChannelID, channelID))
}

// RecordOutcome finishes a span with the handler result.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetStatus(codes.Ok, "")
}
