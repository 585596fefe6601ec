// Package queue carries notifications from the request path to their
// delivery channel.  The server publishes NotificationEvents to a
// durable RabbitMQ queue; a background consumer picks them up and hands
// them to a Deliverer (SMTP mail, an append-only log file, or both).
package queue

import (
    "context"
    "time"

    "github.com/google/uuid"
)

// DefaultQueueName is the durable queue notifications travel through.
const DefaultQueueName = "meetup.notifications"

// NotificationEvent is the wire payload of one notification.  ID is a
// random UUID that travels as the AMQP message id, so a redelivered
// message can be told apart from a second notification.  Data holds the
// template fields for Kind; values are plain JSON scalars.
type NotificationEvent struct {
    ID        string         `json:"id"`
    Kind      string         `json:"kind"`
    Recipient string         `json:"recipient"`
    Data      map[string]any `json:"data"`
    CreatedAt string         `json:"created_at"`
}

func newEvent(kind, recipient string, data map[string]any) NotificationEvent {
    return NotificationEvent{
        ID:        uuid.NewString(),
        Kind:      kind,
        Recipient: recipient,
        Data:      data,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
}

// Deliverer hands a notification to its final channel.
type Deliverer interface {
    Deliver(ctx context.Context, ev NotificationEvent) error
}

// Fanout delivers to every Deliverer in order and returns the first
// error after trying all of them.
type Fanout []Deliverer

func (f Fanout) Deliver(ctx context.Context, ev NotificationEvent) error {
    var first error
    for _, d := range f {
        if err := d.Deliver(ctx, ev); err != nil && first == nil {
            first = err
        }
    }
    return first
}

// Direct is a Notifier that skips the broker and delivers inline.  It
// is used when no RABBITMQ_URL is configured.
type Direct struct {
    Deliverer Deliverer
}

// Notify delivers the notification immediately.
func (d Direct) Notify(ctx context.Context, kind, recipient string, data map[string]any) error {
    return d.Deliverer.Deliver(ctx, newEvent(kind, recipient, data))
}
