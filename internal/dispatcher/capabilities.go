package dispatcher

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Action is a downstream handler a channel forwards to
type Action func(args ...any)

// Forwarder is the rate-limited entry point that replaces an Action
type Forwarder func(args ...any) error

// Capabilities is the set of named actions and metadata a host wraps.
// Bindings may change at any time; dispatchers read them on every forward.
// A name stays declared once it has been bound, even after Unbind.
type Capabilities struct {
	mu       sync.RWMutex
	actions  map[string]Action
	declared map[string]struct{}
	metadata map[string]any
}

// NewCapabilities creates an empty capability set
func NewCapabilities() *Capabilities {
	return &Capabilities{
		actions:  make(map[string]Action),
		declared: make(map[string]struct{}),
		metadata: make(map[string]any),
	}
}

// Bind attaches action under name. A nil action removes the binding
// but keeps name declared.
func (c *Capabilities) Bind(name string, action Action) *Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.declared[name] = struct{}{}
	if action == nil {
		delete(c.actions, name)
	} else {
		c.actions[name] = action
	}
	return c
}

// Unbind removes the action bound under name
func (c *Capabilities) Unbind(name string) {
	c.Bind(name, nil)
}

// Action returns the action currently bound under name
func (c *Capabilities) Action(name string) (Action, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[name]
	return a, ok && a != nil
}

// Declared reports whether name has ever been bound, enabled or not
func (c *Capabilities) Declared(name string) bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.declared[name]
	return ok
}

// Names returns the bound action names, sorted
func (c *Capabilities) Names() []string {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.actions))
	for name := range c.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetMetadata stores a pass-through value
func (c *Capabilities) SetMetadata(key string, value any) *Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
	return c
}

// Metadata returns a copy of the pass-through values
func (c *Capabilities) Metadata() map[string]any {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Enhanced is the outward-facing capability set: debounced channels are
// served by their forwarders, every other action passes through unchanged.
type Enhanced struct {
	forwarders map[string]Forwarder
	caps       *Capabilities
	logger     *zap.Logger
}

// Forwarder returns the rate-limited entry point for a debounced channel
func (e *Enhanced) Forwarder(name string) (Forwarder, bool) {
	f, ok := e.forwarders[name]
	return f, ok
}

// Debounced reports whether name is served by a forwarder
func (e *Enhanced) Debounced(name string) bool {
	_, ok := e.forwarders[name]
	return ok
}

// Call invokes name through its forwarder when debounced, or directly otherwise.
// A declared pass-through action with nothing bound is skipped.
func (e *Enhanced) Call(name string, args ...any) error {
	if f, ok := e.forwarders[name]; ok {
		return f(args...)
	}
	if a, ok := e.caps.Action(name); ok {
		a(args...)
		return nil
	}
	if e.caps.Declared(name) {
		if e.logger != nil {
			e.logger.Warn("No action bound, call skipped", zap.String("action", name))
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
}

// Names returns every name callable through the set, sorted
func (e *Enhanced) Names() []string {
	seen := make(map[string]struct{})
	for name := range e.forwarders {
		seen[name] = struct{}{}
	}
	for _, name := range e.caps.Names() {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns the wrapped set's pass-through values
func (e *Enhanced) Metadata() map[string]any {
	return e.caps.Metadata()
}
