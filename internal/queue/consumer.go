// Package queue also contains the background consumer that listens to the
// entitlement and mail queues and writes one line per event to a log file
// under the configured directory.
package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// logFiles maps each consumed queue to its output file.
var logFiles = map[string]string{
    PlanChangedQueue:   "entitlements.log",
    PasswordResetQueue: "mail.log",
}

// Consumer drains the event queues into log files.
type Consumer struct {
    URL    string
    LogDir string
}

// NewConsumer returns a Consumer writing under logDir.
func NewConsumer(url, logDir string) *Consumer {
    return &Consumer{URL: url, LogDir: logDir}
}

// Run connects to RabbitMQ, declares both queues (durable) and consumes
// them.  It runs a reconnect loop with exponential backoff and never
// returns; processing errors are logged and the offending message is
// rejected so the server continues operating.
func (c *Consumer) Run() {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Printf("event-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            time.Sleep(backoff)
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := c.consumeLoop(conn); err != nil {
            log.Printf("event-consumer: consume loop ended: %v; reconnecting", err)
            _ = conn.Close()
            time.Sleep(2 * time.Second)
        }
    }
}

func (c *Consumer) consumeLoop(conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("event-consumer: set QoS failed: %v", err)
    }

    type delivery struct {
        queue string
        d     amqp.Delivery
    }
    merged := make(chan delivery)
    done := make(chan struct{})
    defer close(done)

    for queueName := range logFiles {
        if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", queueName, err)
        }
        msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", queueName, err)
        }
        go func(name string, msgs <-chan amqp.Delivery) {
            for d := range msgs {
                select {
                case merged <- delivery{queue: name, d: d}:
                case <-done:
                    return
                }
            }
            select {
            case merged <- delivery{}:
            case <-done:
            }
        }(queueName, msgs)
    }

    for m := range merged {
        if m.queue == "" {
            return errors.New("deliveries channel closed")
        }
        if err := c.HandleMessage(m.queue, m.d.Body); err != nil {
            log.Printf("event-consumer: handle message failed: %v", err)
            _ = m.d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = m.d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// HandleMessage decodes body according to queueName and appends a line to
// the matching log file.
func (c *Consumer) HandleMessage(queueName string, body []byte) error {
    var line string
    switch queueName {
    case PlanChangedQueue:
        var ev PlanChangedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        line = FormatPlanChanged(ev)
    case PasswordResetQueue:
        var ev PasswordResetMailEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        line = FormatPasswordReset(ev)
    default:
        return fmt.Errorf("unknown queue %q", queueName)
    }

    if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    fpath := filepath.Join(c.LogDir, logFiles[queueName])
    f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatPlanChanged renders a plan change as a single log line.
func FormatPlanChanged(ev PlanChangedEvent) string {
    expires := "never"
    if ev.ExpiresAt != "" {
        expires = ev.ExpiresAt
    }
    return fmt.Sprintf("[%s] Plan changed | user_id=%d | email=%q | %s -> %s | by=%q | reason=%q | expires=%s\n",
        ev.ChangedAt, ev.UserID, ev.Email, ev.FromPlan, ev.ToPlan, ev.Actor, ev.Reason, expires)
}

// FormatPasswordReset renders an outgoing reset mail as a single log line.
// No real mail transport is configured; the line is the delivery.
func FormatPasswordReset(ev PasswordResetMailEvent) string {
    return fmt.Sprintf("Password reset mail | user_id=%d | to=%q | link=%s | expires=%s\n",
        ev.UserID, ev.Email, ev.ResetURL, ev.ExpiresAt)
}
