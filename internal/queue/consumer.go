package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// AuditLogName is the file the consumer appends to inside its log directory.
const AuditLogName = "dispenser-events.log"

// StartDispenserConsumer connects to RabbitMQ, declares queue (durable) and
// consumes messages until ctx is cancelled.  Each message is appended to
// logDir/dispenser-events.log as one human-friendly line.  Broker failures
// trigger a reconnect with exponential backoff; malformed messages are
// rejected without requeue so the consumer keeps running.
func StartDispenserConsumer(ctx context.Context, url, queue, logDir string) error {
    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            slog.Warn("event consumer: dial failed", "err", err, "retry_in", backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, queue, logDir)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        slog.Warn("event consumer: consume loop ended, reconnecting", "err", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue, logDir string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        slog.Warn("event consumer: set QoS failed", "err", err)
    }

    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := handleMessage(logDir, d.Body); err != nil {
            slog.Error("event consumer: handle message failed", "err", err)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func handleMessage(logDir string, body []byte) error {
    var ev DispenserEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if err := os.MkdirAll(logDir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", logDir, err)
    }
    f, err := os.OpenFile(filepath.Join(logDir, AuditLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev DispenserEvent) string {
    line := fmt.Sprintf("[%s] %s | event_id=%s | owner_id=%d | dispenser_id=%d | dispenser=%q",
        ev.OccurredAt, ev.Type, ev.ID, ev.OwnerID, ev.DispenserID, ev.DispenserName)
    if ev.PreviousName != "" {
        line += fmt.Sprintf(" | previous=%q", ev.PreviousName)
    }
    if ev.SerialID != "" {
        line += " | serial=" + ev.SerialID
    }
    if ev.SlotNumber != 0 {
        line += fmt.Sprintf(" | slot=%d | pill=%q", ev.SlotNumber, ev.PillName)
    }
    if ev.Type == EventContainerScheduleReplaced {
        line += fmt.Sprintf(" | schedules=%d", ev.ScheduleCount)
    }
    return line + "\n"
}
