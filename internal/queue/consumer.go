package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads notifications off the broker and delivers them.
type Consumer struct {
    URL       string
    Queue     string
    Deliverer Deliverer
    Logger    *slog.Logger

    // DeliverTimeout bounds a single delivery.
    DeliverTimeout time.Duration
}

// NewConsumer returns a Consumer for url on DefaultQueueName.
func NewConsumer(url string, d Deliverer, logger *slog.Logger) *Consumer {
    if logger == nil {
        logger = slog.Default()
    }
    return &Consumer{URL: url, Queue: DefaultQueueName, Deliverer: d, Logger: logger, DeliverTimeout: 30 * time.Second}
}

// Run connects to the broker and consumes until ctx is cancelled.  A
// lost connection is re-dialled with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Logger.Warn("notification consumer: dial failed", "error", err, "retry_in", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Logger.Warn("notification consumer: consume loop ended, reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(20, 0, false); err != nil {
        c.Logger.Warn("notification consumer: set QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handle(ctx, d.Body); err != nil {
                c.Logger.Error("notification consumer: delivery failed", "error", err)
                _ = d.Nack(false, false) // dropped, not requeued
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// handle decodes one message body and delivers it.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
    var ev NotificationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Kind == "" || ev.Recipient == "" {
        return errors.New("notification without kind or recipient")
    }
    timeout := c.DeliverTimeout
    if timeout <= 0 {
        timeout = 30 * time.Second
    }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    return c.Deliverer.Deliver(ctx, ev)
}
