package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers dispenser events to the broker.
type Publisher interface {
    Publish(ctx context.Context, ev DispenserEvent) error
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DispenserEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to a durable queue on the
// default exchange.  The connection is opened lazily and re-opened after any
// failure.
type AMQPPublisher struct {
    url   string
    queue string

    dialTimeout time.Duration

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for queue at url.  No connection is
// made until the first Publish.
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
    return &AMQPPublisher{url: url, queue: queue, dialTimeout: 2 * time.Second}
}

// channel returns an open channel, dialing and declaring the queue when
// needed.  The dial and handshake are bounded by dialTimeout or ctx's
// deadline, whichever is sooner, since callers hold p.mu meanwhile.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    timeout := p.dialTimeout
    if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
        timeout = time.Until(dl)
    }
    if timeout <= 0 {
        return nil, context.DeadlineExceeded
    }
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
    if err != nil {
        return nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("channel open: %w", err)
    }
    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *AMQPPublisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

// Publish sends ev as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev DispenserEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channel(ctx)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
        p.reset()
        return fmt.Errorf("publish: %w", err)
    }
    return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}

// instrumented counts publish outcomes per event type.
type instrumented struct {
    next    Publisher
    counter *prometheus.CounterVec
}

// WithMetrics wraps p so every publish increments
// dispenser_events_published_total{type,outcome}.
func WithMetrics(p Publisher, reg prometheus.Registerer) Publisher {
    counter := prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "dispenser_events_published_total",
        Help: "Dispenser events handed to the broker by type and outcome.",
    }, []string{"type", "outcome"})
    reg.MustRegister(counter)
    return &instrumented{next: p, counter: counter}
}

func (i *instrumented) Publish(ctx context.Context, ev DispenserEvent) error {
    err := i.next.Publish(ctx, ev)
    outcome := "ok"
    if err != nil {
        outcome = "error"
    }
    i.counter.WithLabelValues(ev.Type, outcome).Inc()
    return err
}

// PublishQuietly publishes ev with a short timeout and only logs failures,
// so a broker outage never fails the request that produced the event.
func PublishQuietly(p Publisher, ev DispenserEvent) {
    if p == nil {
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := p.Publish(ctx, ev); err != nil {
        slog.Warn("event publish failed", "type", ev.Type, "dispenser_id", ev.DispenserID, "err", err)
    }
}
