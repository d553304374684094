// Package queue contains the background consumer that listens to the
// parking.ticket.closed queue and appends one line per closed ticket to
// <dir>/parking.log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
)

// Consumer writes ticket-closed events to a log file.
type Consumer struct {
	URL    string // broker URL
	LogDir string // directory holding parking.log
	Log    *zap.Logger
}

// Run connects to the broker, declares the durable queue and consumes until
// ctx is cancelled.  Dial failures back off exponentially up to 30s; a
// dropped connection is re-established.  Malformed messages are rejected
// without requeue so they cannot loop.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.OrNop(c.Log).With(zap.String("component", "ticket-closed-consumer"))
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(TicketClosedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(TicketClosedQueue, "", false, false, false, false, nil)
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
			if err := c.HandleMessage(d.Body); err != nil {
				log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event body and appends its summary line.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev TicketClosedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.TicketID == "" {
		return errors.New("event without ticket_id")
	}
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "parking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single newline-terminated log line.
func FormatLine(ev TicketClosedEvent) string {
	return fmt.Sprintf("[%s] Ticket closed | ticket_id=%s | device=%s | parking=%q | entry=%s | exit=%s | duration=%s | rate=%d/h | total=%d\n",
		ev.ClosedAt, ev.TicketID, ev.DeviceID, ev.ParkingName, ev.EntryTime, ev.ExitTime, ev.Duration, ev.PricePerHour, ev.TotalAmount)
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
