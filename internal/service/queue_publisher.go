// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/chat-ticketing/internal/queue"
)

// TicketPublisher publishes ticket.issued events.  A connection is dialed
// per publish; issuance is rare enough that pooling is not worth the
// reconnect handling.
type TicketPublisher struct {
	URL string
	Log *slog.Logger
}

// PublishTicketIssued publishes event to the "ticket.issued" queue as a
// persistent JSON message.  It never panics; errors are logged and
// returned so the caller can choose to ignore them.
func (p *TicketPublisher) PublishTicketIssued(ctx context.Context, event q.TicketIssuedEvent) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		q.TicketIssuedQueue, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		log.Warn("rabbitmq: queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.Code,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.TicketIssuedQueue, false, false, pub); err != nil {
		log.Warn("rabbitmq: publish failed", "error", err, "code", event.Code)
		return err
	}
	return nil
}
