package rabbitmq

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Config struct {
	BrokerLink        string `mapstructure:"broker_link" validate:"required"`
	ExchangeName      string `mapstructure:"exchange_name"`
	ExchangeType      string `mapstructure:"exchange_type"`
	ResultsQueue      string `mapstructure:"results_queue"`
	ResultsRoutingKey string `mapstructure:"results_routing_key"`
	WorkerCount       int    `mapstructure:"worker_count"`
}

func NewConnection(cfg *Config) (*amqp091.Connection, error) {

	var conn *amqp091.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp091.Dial(cfg.BrokerLink)
		if err == nil {
			return conn, nil
		}
		time.Sleep(2 * time.Second)
		log.Printf("rabbitmq reconnection attempt %v", i+1)
	}
	log.Printf("failed to connect to rabbitmq, after %v attempts: %v", 5, err)
	return nil, errors.New("failed to connect to rabbitmq")
}

// SetupTopology declares the check exchange, one queue per region bound with
// routing key check.<region>, and the shared results queue.
func SetupTopology(conn *amqp091.Connection, cfg *Config, regions []string) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		true, false, false, false, nil,
	); err != nil {
		return err
	}

	for _, region := range regions {
		queue := fmt.Sprintf("check.%s", region)

		if _, err := ch.QueueDeclare(
			queue,
			true, false, false, false, nil,
		); err != nil {
			return err
		}

		if err := ch.QueueBind(
			queue,
			CheckRoutingKey(region),
			cfg.ExchangeName,
			false, nil,
		); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(
		cfg.ResultsQueue,
		true, false, false, false, nil,
	); err != nil {
		return err
	}

	return ch.QueueBind(
		cfg.ResultsQueue,
		cfg.ResultsRoutingKey,
		cfg.ExchangeName,
		false, nil,
	)
}

func CheckRoutingKey(region string) string {
	return fmt.Sprintf("check.%s", region)
}
