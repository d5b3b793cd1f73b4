package rabbit

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/cinema-seat-booking/internal/outbox"
)

const Exchange = "cinema.events"

// Publisher sends booking events to a topic exchange, routed by event type.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "opening channel")
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "declaring exchange %s", Exchange)
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Name() string { return "rabbitmq" }

func (p *Publisher) Publish(ctx context.Context, ev outbox.BookingEvent) error {
	msg, err := NewMessage(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, Exchange, ev.Type, false, false, msg)
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// NewMessage encodes ev as a persistent JSON message keyed by the event ID.
func NewMessage(ev outbox.BookingEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "encoding booking event")
	}
	return amqp.Publishing{
		MessageId:    ev.ID.String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}, nil
}
