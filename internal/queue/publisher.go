package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is a Notifier that publishes each notification as a
// persistent JSON message on a durable queue.  Each call opens its own
// connection, so a broker outage only fails the notification at hand.
type Publisher struct {
    URL   string
    Queue string
}

// NewPublisher returns a Publisher for url using DefaultQueueName.
func NewPublisher(url string) *Publisher {
    return &Publisher{URL: url, Queue: DefaultQueueName}
}

// Notify publishes one notification.  Errors are returned to the caller,
// which logs them; nothing here panics.
func (p *Publisher) Notify(ctx context.Context, kind, recipient string, data map[string]any) error {
    ev := newEvent(kind, recipient, data)
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal notification: %w", err)
    }

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.ID,
        Timestamp:    time.Now().UTC(),
        Type:         kind,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    return nil
}
