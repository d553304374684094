// Package service publishes domain events to RabbitMQ.  Failures are logged
// and returned so that callers may ignore them without failing the request
// that triggered the event.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
	q "github.com/iliyamo/parking-ticket-tracker/internal/queue"
)

// AMQPPublisher dials the broker per event.  Ticket closes are rare enough
// on one device that a pooled connection buys nothing.
type AMQPPublisher struct {
	url string
	log *zap.Logger
}

func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: logger.OrNop(log)}
}

// PublishTicketClosed publishes event to the durable ticket-closed queue as
// a persistent message.
func (p *AMQPPublisher) PublishTicketClosed(ctx context.Context, event q.TicketClosedEvent) error {
	log := p.log.With(zap.String("ticket_id", event.TicketID))
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.TicketClosedQueue, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    event.TicketID,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.TicketClosedQueue, false, false, pub); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) PublishTicketClosed(context.Context, q.TicketClosedEvent) error { return nil }
