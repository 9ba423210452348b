package rabbitmq

import (
	"context"
	"errors"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	ch       *amqp091.Channel
	confirms <-chan amqp091.Confirmation
	exchange string
}

func NewPublisher(conn *amqp091.Connection, exchange string) (*Publisher, error) {

	if conn == nil {
		return nil, errors.New("AMQP connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}

	confirms := ch.NotifyPublish(make(chan amqp091.Confirmation, 100))

	return &Publisher{
		ch:       ch,
		confirms: confirms,
		exchange: exchange,
	}, nil
}

// Publish sends one message and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if p.ch == nil {
		return errors.New("AMQP channel is nil")
	}

	err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	select {
	case confirm := <-p.confirms:
		if !confirm.Ack {
			return errors.New("publish not confirmed by broker")
		}
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("publish confirm timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
