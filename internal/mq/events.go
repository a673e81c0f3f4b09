package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rainwatch/apiserver/types"
)

const (
	EventPredictionStored  = "prediction.stored"
	EventPredictionDeleted = "prediction.deleted"

	attrEvent       = "event"
	attrPrincipalID = "principal_id"
	attrDay         = "day"
)

// PredictionEvent is the payload of prediction.stored and prediction.deleted
// events. Both travel on the same channel so a principal's events keep their
// order.
type PredictionEvent struct {
	Event      string                 `json:"event"`
	Record     types.PredictionRecord `json:"record"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// PredictionPublisher publishes prediction events on a channel.
type PredictionPublisher struct {
	backend Backend
	channel string
	now     func() time.Time
}

func NewPredictionPublisher(backend Backend, channel string) *PredictionPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = EventPredictionStored
	}
	return &PredictionPublisher{backend: backend, channel: channel, now: time.Now}
}

func (p *PredictionPublisher) Channel() string {
	return p.channel
}

func (p *PredictionPublisher) PublishPredictionStored(ctx context.Context, record types.PredictionRecord) error {
	return p.publish(ctx, EventPredictionStored, record)
}

func (p *PredictionPublisher) PublishPredictionDeleted(ctx context.Context, record types.PredictionRecord) error {
	return p.publish(ctx, EventPredictionDeleted, record)
}

func (p *PredictionPublisher) publish(ctx context.Context, event string, record types.PredictionRecord) error {
	data, err := json.Marshal(PredictionEvent{Event: event, Record: record, OccurredAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]string{
		attrEvent:       event,
		attrPrincipalID: record.PrincipalID,
		attrDay:         record.DayBucket.Format(time.DateOnly),
	}
	if _, err := p.backend.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// DecodePredictionEvent parses a prediction event. The event attribute wins
// over the payload field; a message carrying neither is a stored event.
func DecodePredictionEvent(msg Message) (PredictionEvent, error) {
	var payload PredictionEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return PredictionEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if event, ok := msg.Attributes[attrEvent]; ok {
		payload.Event = event
	}
	if payload.Event == "" {
		payload.Event = EventPredictionStored
	}

	switch payload.Event {
	case EventPredictionStored, EventPredictionDeleted:
	default:
		return PredictionEvent{}, fmt.Errorf("unexpected event %q", payload.Event)
	}
	if payload.Record.ID == "" || payload.Record.PrincipalID == "" {
		return PredictionEvent{}, fmt.Errorf("event %s missing record identifiers", msg.ID)
	}
	return payload, nil
}
