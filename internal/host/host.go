// Package host runs one dispatcher per configured group and publishes
// every forwarded action to the sink manager.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"actiongate/internal/config"
	"actiongate/internal/dispatcher"
	"actiongate/internal/sink"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	// ErrGroupNotFound is returned for a group name that is not configured
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotStarted is returned when triggering before Start
	ErrNotStarted = errors.New("host not started")
)

// Publisher receives forwarded actions
type Publisher interface {
	Publish(ev *sink.Event) bool
}

// Option configures a Host
type Option func(*Host)

// WithClock sets the clock every group dispatcher runs on
func WithClock(clock clockwork.Clock) Option {
	return func(h *Host) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// GroupStatus is a point-in-time view of one group
type GroupStatus struct {
	Name       string                    `json:"name"`
	Policy     dispatcher.Policy         `json:"policy"`
	DurationMS int64                     `json:"duration_ms"`
	Attached   bool                      `json:"attached"`
	Bound      []string                  `json:"bound"`
	Channels   []dispatcher.ChannelStats `json:"channels"`
	Metadata   map[string]any            `json:"metadata,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

type group struct {
	name      string
	resolved  dispatcher.Config
	err       error
	actions   map[string]struct{}
	caps      *dispatcher.Capabilities
	component *dispatcher.Component
}

// Host owns the group dispatchers
type Host struct {
	publisher Publisher
	logger    *zap.Logger
	clock     clockwork.Clock

	mu      sync.RWMutex
	groups  map[string]*group
	order   []string
	started bool
	stopped bool
}

// New prepares one group per configuration entry. A group whose dispatcher
// configuration does not resolve is kept and reported, and fails Start.
func New(cfg *config.Config, publisher Publisher, logger *zap.Logger, opts ...Option) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Host{
		publisher: publisher,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		groups:    make(map[string]*group, len(cfg.Groups)),
	}
	for _, opt := range opts {
		opt(h)
	}

	for _, gc := range cfg.Groups {
		h.addGroup(gc)
	}
	return h
}

func (h *Host) addGroup(gc config.GroupConfig) {
	g := &group{
		name:    gc.Name,
		actions: make(map[string]struct{}, len(gc.Actions)+len(gc.Channels)),
		caps:    dispatcher.NewCapabilities(),
	}
	g.resolved, g.err = dispatcher.Resolve(gc.Dispatcher())
	if g.err != nil {
		h.logger.Warn("Group configuration rejected",
			zap.String("group", gc.Name),
			zap.Error(g.err))
	}

	for k, v := range gc.Metadata {
		g.caps.SetMetadata(k, v)
	}
	for _, name := range gc.Channels {
		g.actions[name] = struct{}{}
	}
	for _, name := range gc.Actions {
		g.actions[name] = struct{}{}
		g.caps.Bind(name, h.publishAction(g, name))
	}

	g.component = dispatcher.Wrap(g.caps, gc.Dispatcher(),
		dispatcher.WithClock(h.clock),
		dispatcher.WithLogger(h.logger.With(zap.String("group", gc.Name))))

	h.groups[gc.Name] = g
	h.order = append(h.order, gc.Name)
}

// publishAction returns the action bound under name in g
func (h *Host) publishAction(g *group, name string) dispatcher.Action {
	return func(args ...any) {
		ev := sink.NewEvent(g.name, name, args, h.clock.Now())
		if md := g.caps.Metadata(); len(md) > 0 {
			ev.Metadata = md
		}
		h.publisher.Publish(ev)
	}
}

// Start attaches every group. The first failure detaches the groups
// already attached and is returned.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return dispatcher.ErrDisposed
	}
	if h.started {
		return nil
	}

	for i, name := range h.order {
		if err := ctx.Err(); err != nil {
			h.detach(h.order[:i])
			return err
		}

		g := h.groups[name]
		if g.err != nil {
			h.detach(h.order[:i])
			return fmt.Errorf("attach group %s: %w", name, g.err)
		}
		if err := g.component.OnAttach(); err != nil {
			h.detach(h.order[:i])
			return fmt.Errorf("attach group %s: %w", name, err)
		}
		h.logger.Info("Group attached",
			zap.String("group", name),
			zap.Strings("channels", g.resolved.Channels),
			zap.Stringer("policy", g.resolved.Type),
			zap.Duration("duration", g.resolved.Duration))
	}

	h.started = true
	return nil
}

// Stop detaches every group, cancelling pending windows
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.detach(h.order)
	h.stopped = true
	h.logger.Info("Host stopped", zap.Int("groups", len(h.order)))
	return nil
}

func (h *Host) detach(names []string) {
	for _, name := range names {
		h.groups[name].component.OnDetach()
	}
}

// Trigger calls channel in group through the group's enhanced capabilities
func (h *Host) Trigger(groupName, channel string, args ...any) error {
	g, err := h.group(groupName)
	if err != nil {
		return err
	}

	h.mu.RLock()
	started, stopped := h.started, h.stopped
	h.mu.RUnlock()
	switch {
	case stopped:
		return dispatcher.ErrDisposed
	case !started:
		return ErrNotStarted
	}

	return g.component.Capabilities().Call(channel, args...)
}

// Rebind enables or disables the action bound under name in a group.
// Only configured channels and actions can be rebound.
func (h *Host) Rebind(groupName, name string, enabled bool) error {
	g, err := h.group(groupName)
	if err != nil {
		return err
	}
	if _, ok := g.actions[name]; !ok {
		return fmt.Errorf("%w: %s", dispatcher.ErrUnknownChannel, name)
	}

	if enabled {
		g.caps.Bind(name, h.publishAction(g, name))
	} else {
		g.caps.Unbind(name)
	}
	h.logger.Info("Action rebound",
		zap.String("group", groupName),
		zap.String("action", name),
		zap.Bool("enabled", enabled))
	return nil
}

// Groups returns the status of every group in configuration order
func (h *Host) Groups() []GroupStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]GroupStatus, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.groups[name].status())
	}
	return out
}

// Group returns the status of one group
func (h *Host) Group(name string) (GroupStatus, error) {
	g, err := h.group(name)
	if err != nil {
		return GroupStatus{}, err
	}
	return g.status(), nil
}

func (h *Host) group(name string) (*group, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g, ok := h.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return g, nil
}

func (g *group) status() GroupStatus {
	st := GroupStatus{
		Name:       g.name,
		Policy:     g.resolved.Type,
		DurationMS: g.resolved.Duration.Milliseconds(),
		Bound:      g.caps.Names(),
		Metadata:   g.caps.Metadata(),
		Channels:   []dispatcher.ChannelStats{},
	}
	if g.err != nil {
		st.Error = g.err.Error()
	}

	if d := g.component.Dispatcher(); d != nil && !d.Disposed() {
		st.Attached = true
		st.Channels = d.Stats()
	}
	return st
}
