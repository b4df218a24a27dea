package rabbit

import (
	"context"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchange = "tickets.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// PublishJSON wraps a pre-marshalled body in the standard message
// envelope used by every binary in this repo.
func (p *Publisher) PublishJSON(ctx context.Context, key, messageID string, body []byte) error {
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return p.Publish(ctx, key, amqp.Publishing{
		MessageId:   messageID,
		ContentType: "application/json",
		Body:        body,
	})
}
