package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"actiongate/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// kafkaWriter is the part of *kafka.Writer the sink uses
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes forwarded actions to a Kafka topic
type KafkaSink struct {
	writer kafkaWriter
	logger *zap.Logger
}

// NewKafkaSink creates a Kafka sink. Brokers are dialed lazily on first write.
func NewKafkaSink(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka configuration is nil or empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaSink(w, logger), nil
}

func newKafkaSink(w kafkaWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: w,
		logger: logger,
	}
}

// Name returns the sink type
func (s *KafkaSink) Name() Type { return TypeKafka }

// Deliver writes the event keyed by group/channel, so one channel stays on one partition
func (s *KafkaSink) Deliver(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Key()),
		Value: data,
		Time:  ev.ForwardedAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "event-type", Value: []byte(EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
