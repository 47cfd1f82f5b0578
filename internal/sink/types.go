package sink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a sink implementation
type Type string

const (
	TypeLog      Type = "log"
	TypeWebhook  Type = "webhook"
	TypeSlack    Type = "slack"
	TypeRedis    Type = "redis"
	TypeKafka    Type = "kafka"
	TypeRabbitMQ Type = "rabbitmq"
)

// EventType is reported to sinks that carry an event name
const EventType = "action.forwarded"

// Sink delivers forwarded actions downstream
type Sink interface {
	// Name returns the sink type
	Name() Type

	// Deliver sends a single event
	Deliver(ctx context.Context, ev *Event) error

	// Close releases the sink's connections
	Close() error
}

// Event is one forwarded action
type Event struct {
	ID          string         `json:"id"`
	Group       string         `json:"group"`
	Channel     string         `json:"channel"`
	Args        []any          `json:"args"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ForwardedAt time.Time      `json:"forwarded_at"`
}

// NewEvent creates an event stamped with a fresh ID
func NewEvent(group, channel string, args []any, at time.Time) *Event {
	if args == nil {
		args = []any{}
	}
	return &Event{
		ID:          uuid.NewString(),
		Group:       group,
		Channel:     channel,
		Args:        args,
		ForwardedAt: at,
	}
}

// Subject returns the dotted group.channel name used as a routing key
func (e *Event) Subject() string {
	return e.Group + "." + e.Channel
}

// Key returns the group/channel partition key
func (e *Event) Key() string {
	return e.Group + "/" + e.Channel
}
