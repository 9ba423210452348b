package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one delivery; a non-nil error nacks the message.
type Handler interface {
	Handle(ctx context.Context, msg amqp091.Delivery) error
}

type Consumer struct {
	ch          *amqp091.Channel
	queueName   string
	workers     int
	sem         chan struct{}
	wg          sync.WaitGroup
	consumerTag string
	logger      *zerolog.Logger
}

func NewConsumer(conn *amqp091.Connection, queueName string, workers int, logger *zerolog.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("AMQP connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	// backpressure: never more unacked deliveries than workers
	if err := ch.Qos(workers, 0, false); err != nil {
		return nil, err
	}

	return &Consumer{
		ch:        ch,
		queueName: queueName,
		workers:   workers,
		sem:       make(chan struct{}, workers),
		logger:    logger,
	}, nil
}

func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	c.consumerTag = uuid.NewString()

	msgs, err := c.ch.Consume(
		c.queueName,
		c.consumerTag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = c.ch.Cancel(c.consumerTag, false) // stop new deliveries
	}()

	for msg := range msgs {
		c.sem <- struct{}{}
		c.wg.Add(1)

		go func(m amqp091.Delivery) {
			defer c.wg.Done()
			defer func() { <-c.sem }()

			msgCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := handler.Handle(msgCtx, m); err != nil {
				c.logger.Error().Err(err).Msg("message handling failed")
				_ = m.Nack(false, false)
				return
			}

			_ = m.Ack(false)
		}(msg)
	}

	c.wg.Wait()
	return nil
}

func (c *Consumer) Shutdown(ctx context.Context) error {
	if c.consumerTag != "" {
		_ = c.ch.Cancel(c.consumerTag, false)
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return c.ch.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
