package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"actiongate/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpPublisher is the part of *amqp.Channel the sink uses
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQSink publishes forwarded actions to a topic exchange
type RabbitMQSink struct {
	channel  amqpPublisher
	conn     io.Closer
	exchange string
	logger   *zap.Logger
}

// NewRabbitMQSink dials the broker and declares the exchange
func NewRabbitMQSink(cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQSink, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq configuration is nil or empty")
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
		}
	}

	logger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.Exchange))
	return newRabbitMQSink(ch, conn, cfg.Exchange, logger), nil
}

func newRabbitMQSink(ch amqpPublisher, conn io.Closer, exchange string, logger *zap.Logger) *RabbitMQSink {
	return &RabbitMQSink{
		channel:  ch,
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}
}

// Name returns the sink type
func (s *RabbitMQSink) Name() Type { return TypeRabbitMQ }

// Deliver publishes the event with routing key group.channel
func (s *RabbitMQSink) Deliver(ctx context.Context, ev *Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = s.channel.PublishWithContext(ctx, s.exchange, ev.Subject(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         EventType,
		AppId:        config.AppName,
		Timestamp:    ev.ForwardedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close closes the channel and its connection
func (s *RabbitMQSink) Close() error {
	var errs []error
	if err := s.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
