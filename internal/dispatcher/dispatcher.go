// Package dispatcher implements a keyed rate-limiting dispatcher.
//
// A Dispatcher owns one independent state machine per configured channel.
// Each Trigger is run through the configured policy (leading edge, trailing
// edge or throttle), which forwards the call to the channel's current action
// immediately, schedules a deferred forward, or drops the call.
//
//	caps := dispatcher.NewCapabilities().Bind("save", save)
//	d, err := dispatcher.New(caps, dispatcher.Config{
//		Channels: []string{"save"},
//		Duration: 300 * time.Millisecond,
//		Type:     dispatcher.TrailingEdge,
//	})
//	if err != nil {
//		return err
//	}
//	defer d.Dispose()
//
//	_ = d.Trigger("save", doc)
package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithClock sets the clock timers are scheduled on
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher rate-limits calls on a fixed set of named channels
type Dispatcher struct {
	caps   *Capabilities
	config Config
	policy policyFunc
	clock  clockwork.Clock
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]*channelState
	disposed bool
}

// channelState is the per-channel state machine record.
// Every field below mu is guarded by it.
type channelState struct {
	name    string
	forward Forwarder

	mu       sync.Mutex
	blocked  bool
	timer    clockwork.Timer
	deadline time.Time
	fire     bool
	seq      uint64
	args     []any
	closed   bool

	triggered atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// ChannelStats is a point-in-time view of one channel
type ChannelStats struct {
	Name      string `json:"name"`
	Blocked   bool   `json:"blocked"`
	Triggered uint64 `json:"triggered"`
	Forwarded uint64 `json:"forwarded"`
	Dropped   uint64 `json:"dropped"`
}

// New resolves raw configuration and registers one channel per configured name.
// It fails with *ConfigError or *PolicyError on invalid configuration.
func New(caps *Capabilities, raw any, opts ...Option) (*Dispatcher, error) {
	cfg, err := Resolve(raw)
	if err != nil {
		return nil, err
	}

	if caps == nil {
		caps = NewCapabilities()
	}

	d := &Dispatcher{
		caps:     caps,
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		channels: make(map[string]*channelState, len(cfg.Channels)),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.policy, err = d.resolvePolicy(cfg.Type); err != nil {
		return nil, err
	}

	for _, name := range cfg.Channels {
		d.register(name)
	}

	d.logger.Debug("Dispatcher created",
		zap.Strings("channels", cfg.Channels),
		zap.Duration("duration", cfg.Duration),
		zap.Stringer("policy", cfg.Type))

	return d, nil
}

// register allocates the idle state and forwarder for a channel
func (d *Dispatcher) register(name string) {
	st := &channelState{name: name}
	st.forward = func(args ...any) error {
		return d.Trigger(name, args...)
	}
	d.channels[name] = st
}

// Trigger runs a call on channel through the configured policy.
// It never blocks on the window; deferred forwards run on the clock's timer goroutine.
func (d *Dispatcher) Trigger(channel string, args ...any) error {
	st, err := d.channel(channel)
	if err != nil {
		return err
	}
	return d.policy(st, args)
}

func (d *Dispatcher) channel(name string) (*channelState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.disposed {
		return nil, ErrDisposed
	}
	st, ok := d.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return st, nil
}

// armLocked schedules the end of the current window. st.mu must be held.
// When fire is set the stored args are forwarded as the window closes.
func (d *Dispatcher) armLocked(st *channelState, fire bool) {
	st.seq++
	seq := st.seq
	st.deadline = d.clock.Now().Add(d.config.Duration)
	st.fire = fire
	st.timer = d.clock.AfterFunc(d.config.Duration, func() {
		d.expire(st, seq, fire)
	})
}

// stopLocked cancels the pending timer. st.mu must be held.
func (d *Dispatcher) stopLocked(st *channelState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

// closeElapsedLocked ends a window whose deadline has passed while its timer
// callback has not run yet. st.mu must be held. The returned args are owed to
// the action when due is set and must be forwarded once st.mu is released.
func (d *Dispatcher) closeElapsedLocked(st *channelState) (args []any, due bool) {
	if !st.blocked || d.clock.Now().Before(st.deadline) {
		return nil, false
	}
	d.stopLocked(st)
	st.seq++
	args, due = st.args, st.fire
	st.blocked = false
	st.fire = false
	st.args = nil
	return args, due
}

// expire closes a window. Callbacks from a superseded or cancelled timer are ignored.
func (d *Dispatcher) expire(st *channelState, seq uint64, fire bool) {
	st.mu.Lock()
	if st.closed || st.seq != seq {
		st.mu.Unlock()
		return
	}
	args := st.args
	st.blocked = false
	st.fire = false
	st.timer = nil
	st.args = nil
	st.mu.Unlock()

	if fire {
		d.forward(st, args)
	}
}

// forward invokes the action currently bound to the channel.
// A missing action is a valid, inert configuration.
func (d *Dispatcher) forward(st *channelState, args []any) {
	action, ok := d.caps.Action(st.name)
	if !ok {
		d.logger.Warn("No action bound for channel, forward skipped",
			zap.String("channel", st.name))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Action panicked",
				zap.String("channel", st.name),
				zap.Any("panic", r))
		}
	}()

	st.forwarded.Add(1)
	action(args...)
}

// Dispose cancels every outstanding timer and releases all channel state.
// Calling it more than once has no further effect.
func (d *Dispatcher) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	channels := d.channels
	d.channels = nil
	d.mu.Unlock()

	canceled := 0
	for _, st := range channels {
		st.mu.Lock()
		if st.blocked && st.timer != nil {
			st.timer.Stop()
			canceled++
		}
		st.timer = nil
		st.seq++
		st.blocked = false
		st.fire = false
		st.args = nil
		st.closed = true
		st.mu.Unlock()
	}

	d.logger.Debug("Dispatcher disposed", zap.Int("timers_canceled", canceled))
}

// Disposed reports whether Dispose has been called
func (d *Dispatcher) Disposed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.disposed
}

// Config returns the resolved configuration
func (d *Dispatcher) Config() Config {
	cfg := d.config
	cfg.Channels = append([]string(nil), d.config.Channels...)
	return cfg
}

// Forwarders returns the rate-limited entry point of every channel
func (d *Dispatcher) Forwarders() map[string]Forwarder {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Forwarder, len(d.channels))
	for name, st := range d.channels {
		out[name] = st.forward
	}
	return out
}

// Enhanced returns the outward-facing capability set
func (d *Dispatcher) Enhanced() *Enhanced {
	return &Enhanced{
		forwarders: d.Forwarders(),
		caps:       d.caps,
		logger:     d.logger,
	}
}

// Blocked reports whether channel is inside a window
func (d *Dispatcher) Blocked(channel string) bool {
	st, err := d.channel(channel)
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.blocked
}

// Pending returns the number of channels with an armed timer
func (d *Dispatcher) Pending() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, st := range d.channels {
		st.mu.Lock()
		if st.timer != nil {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// Stats returns per-channel counters in configuration order
func (d *Dispatcher) Stats() []ChannelStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make([]ChannelStats, 0, len(d.channels))
	for _, name := range d.config.Channels {
		st, ok := d.channels[name]
		if !ok {
			continue
		}
		st.mu.Lock()
		blocked := st.blocked
		st.mu.Unlock()
		stats = append(stats, ChannelStats{
			Name:      name,
			Blocked:   blocked,
			Triggered: st.triggered.Load(),
			Forwarded: st.forwarded.Load(),
			Dropped:   st.dropped.Load(),
		})
	}
	return stats
}
