package natsadapter

import (
	"context"
	"encoding/json"
	"time"

	nats "github.com/nats-io/nats.go"
)

// EventPublisher announces identity events on the bus. Publications are
// fire-and-forget; the caller decides whether a failure matters.
type EventPublisher struct {
	conn    *nats.Conn
	subject string
}

type userCreatedEvent struct {
	ID        string  `json:"id"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Source    string  `json:"source"`
	CreatedAt string  `json:"created_at"`
}

func NewEventPublisher(conn *nats.Conn, subject string) *EventPublisher {
	return &EventPublisher{conn: conn, subject: subject}
}

func (p *EventPublisher) UserCreated(_ context.Context, userID string, email, phone *string, source string) error {
	data, err := json.Marshal(userCreatedEvent{
		ID:        userID,
		Email:     email,
		Phone:     phone,
		Source:    source,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

// NoopPublisher satisfies the publisher contract when the bus is not
// configured.
type NoopPublisher struct{}

func (NoopPublisher) UserCreated(context.Context, string, *string, *string, string) error {
	return nil
}
