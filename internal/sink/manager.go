package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"actiongate/internal/config"

	"go.uber.org/zap"
)

const (
	defaultQueueSize    = 100
	defaultTimeout      = 10 * time.Second
	defaultDrainTimeout = 30 * time.Second
	defaultCloseGrace   = 5 * time.Second
)

// Stats counts events seen by the manager
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Manager fans forwarded actions out to every enabled sink
type Manager struct {
	config *config.SinkConfig
	logger *zap.Logger

	mu     sync.RWMutex
	sinks  map[Type]Sink
	closed bool

	events       chan *Event
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	deliverCtx   context.Context
	abort        context.CancelFunc
	stopOnce     sync.Once
	drainTimeout time.Duration
	closeGrace   time.Duration

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewManager creates the sink manager and starts its worker.
// A sink that fails to initialize is logged and skipped.
func NewManager(cfg *config.SinkConfig, logger *zap.Logger) *Manager {
	m := newManager(cfg, logger)
	cfg, logger = m.config, m.logger

	if cfg.Log.Enabled {
		m.Register(NewLogSink(&cfg.Log, logger))
	}

	if cfg.Webhook.Enabled {
		if s, err := NewWebhookSink(&cfg.Webhook, logger); err == nil {
			m.Register(s)
		} else {
			logger.Error("Failed to initialize webhook sink", zap.Error(err))
		}
	}

	if cfg.Slack.Enabled {
		if s, err := NewSlackSink(&cfg.Slack, logger); err == nil {
			m.Register(s)
		} else {
			logger.Error("Failed to initialize slack sink", zap.Error(err))
		}
	}

	if cfg.Redis.Enabled {
		if s, err := NewRedisSink(&cfg.Redis, logger); err == nil {
			m.Register(s)
		} else {
			logger.Error("Failed to initialize redis sink", zap.Error(err))
		}
	}

	if cfg.Kafka.Enabled {
		if s, err := NewKafkaSink(&cfg.Kafka, logger); err == nil {
			m.Register(s)
		} else {
			logger.Error("Failed to initialize kafka sink", zap.Error(err))
		}
	}

	if cfg.RabbitMQ.Enabled {
		if s, err := NewRabbitMQSink(&cfg.RabbitMQ, logger); err == nil {
			m.Register(s)
		} else {
			logger.Error("Failed to initialize rabbitmq sink", zap.Error(err))
		}
	}

	m.start()
	return m
}

// newManager allocates a manager without sinks and without a running worker
func newManager(cfg *config.SinkConfig, logger *zap.Logger) *Manager {
	if cfg == nil {
		cfg = &config.SinkConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	deliverCtx, abort := context.WithCancel(context.Background())
	return &Manager{
		config:       cfg,
		logger:       logger,
		sinks:        make(map[Type]Sink),
		events:       make(chan *Event, size),
		ctx:          ctx,
		cancel:       cancel,
		deliverCtx:   deliverCtx,
		abort:        abort,
		drainTimeout: defaultDrainTimeout,
		closeGrace:   defaultCloseGrace,
	}
}

func (m *Manager) start() {
	m.wg.Add(1)
	go m.processEvents()
}

// Register adds a sink, replacing any sink of the same type
func (m *Manager) Register(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sinks[s.Name()]; ok {
		if err := old.Close(); err != nil {
			m.logger.Warn("Failed to close replaced sink",
				zap.String("sink", string(old.Name())),
				zap.Error(err))
		}
	}
	m.sinks[s.Name()] = s
	m.logger.Info("Sink registered", zap.String("sink", string(s.Name())))
}

// Publish queues an event for delivery. It never blocks: when the queue is
// full or the manager is stopped the event is dropped.
func (m *Manager) Publish(ev *Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.dropped.Add(1)
		return false
	}

	select {
	case m.events <- ev:
		m.published.Add(1)
		return true
	default:
		m.dropped.Add(1)
		m.logger.Warn("Sink queue full, event dropped",
			zap.String("group", ev.Group),
			zap.String("channel", ev.Channel),
			zap.String("event_id", ev.ID))
		return false
	}
}

// processEvents handles delivery in background
func (m *Manager) processEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.drain()
			return
		case ev := <-m.events:
			m.deliver(ev)
		}
	}
}

// drain delivers whatever is still queued at shutdown
func (m *Manager) drain() {
	for {
		select {
		case ev := <-m.events:
			m.deliver(ev)
		default:
			return
		}
	}
}

// deliver sends ev to every sink, one at a time.
// Once deliveries are aborted by Stop the event is dropped.
func (m *Manager) deliver(ev *Event) {
	if m.deliverCtx.Err() != nil {
		m.dropped.Add(1)
		return
	}

	m.mu.RLock()
	sinks := make([]Sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		sinks = append(sinks, s)
	}
	m.mu.RUnlock()

	timeout := m.config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(m.deliverCtx, timeout)
		err := s.Deliver(ctx, ev)
		cancel()

		if err != nil {
			m.failed.Add(1)
			m.logger.Error("Failed to deliver event",
				zap.String("sink", string(s.Name())),
				zap.String("group", ev.Group),
				zap.String("channel", ev.Channel),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			continue
		}
		m.delivered.Add(1)
	}
}

// Stop stops accepting events and waits for queued ones. When the drain
// times out the delivery in flight is cancelled before the sinks are closed.
func (m *Manager) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.cancel()
		defer m.abort()

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(m.drainTimeout):
			err = fmt.Errorf("timeout waiting for events to be delivered")
			m.abort()
			select {
			case <-done:
			case <-time.After(m.closeGrace):
				m.logger.Warn("Closing sinks with a delivery still in flight")
			}
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		var errs []error
		for t, s := range m.sinks {
			if cerr := s.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close %s sink: %w", t, cerr))
			}
		}
		if len(errs) > 0 {
			err = errors.Join(append([]error{err}, errs...)...)
		}
	})
	return err
}

// Names returns the registered sink types, sorted
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sinks))
	for t := range m.sinks {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// IsSinkEnabled reports whether a sink of type t is registered
func (m *Manager) IsSinkEnabled(t Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sinks[t]
	return ok
}

// Stats returns the delivery counters
func (m *Manager) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Delivered: m.delivered.Load(),
		Failed:    m.failed.Load(),
		Dropped:   m.dropped.Load(),
	}
}
