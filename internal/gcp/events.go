package gcp

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventSender posts CloudEvents to a fixed HTTP target.
type EventSender struct {
	client cloudevents.Client
	target string
	source string
}

// NewEventSender creates a CloudEvents HTTP client for target.
func NewEventSender(target, source string) (*EventSender, error) {
	if target == "" {
		return nil, fmt.Errorf("event target must be provided")
	}
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return &EventSender{client: client, target: target, source: source}, nil
}

// Send publishes one JSON event of the given type.
func (s *EventSender) Send(ctx context.Context, eventType string, data any) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetType(eventType)
	e.SetSource(s.source)
	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("failed to set event data: %w", err)
	}

	result := s.client.Send(cloudevents.ContextWithTarget(ctx, s.target), e)
	if cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to deliver event %s: %w", e.ID(), result)
	}
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("event %s was rejected: %w", e.ID(), result)
	}
	return nil
}
