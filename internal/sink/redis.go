package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"actiongate/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisPublisher is the part of *redis.Client the sink uses
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink publishes forwarded actions on Redis pub/sub
type RedisSink struct {
	client redisPublisher
	prefix string
	logger *zap.Logger
}

// NewRedisSink connects to Redis and verifies the connection
func NewRedisSink(cfg *config.RedisConfig, logger *zap.Logger) (*RedisSink, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis configuration is nil or empty")
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DialTimeout:  cfg.DialTimeout,
		PoolSize:     10,
	})

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return newRedisSink(rc, cfg.Prefix, logger), nil
}

func newRedisSink(client redisPublisher, prefix string, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Name returns the sink type
func (s *RedisSink) Name() Type { return TypeRedis }

// Deliver publishes the JSON event on <prefix><group>.<channel>
func (s *RedisSink) Deliver(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := s.prefix + ev.Subject()
	receivers, err := s.client.Publish(ctx, topic, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	if receivers == 0 {
		s.logger.Debug("Redis event had no subscribers", zap.String("topic", topic))
	}
	return nil
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}
