package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/cardiosense/pkg/types"
	"github.com/cardiosense/cardiosense/server/internal/config"
)

// Event types.
const (
	TypeCreated   = "assessment.created"
	TypeEmergency = "assessment.emergency"
)

// Event announces a newly scored reading.
type Event struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Reading    types.Reading `json:"reading"`
}

// NewEvent wraps r. Readings that warrant an alert get TypeEmergency.
func NewEvent(r types.Reading) Event {
	typ := TypeCreated
	if r.Critical() {
		typ = TypeEmergency
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: r.Timestamp,
		Reading:    r,
	}
}

// suffix is the last subject or key segment for the event type.
func (e Event) suffix() string {
	if e.Type == TypeEmergency {
		return "emergency"
	}
	return "created"
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", e.ID, err)
	}
	return data, nil
}

// Publisher sends assessment events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// New returns the publisher selected by cfg.
func New(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "nats":
		return NewNATS(cfg.URL, cfg.Subject)
	case "kafka":
		return NewKafka(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
}
