package dispatcher

import (
	"sync"
)

// Component ties a dispatcher to a host lifecycle.
// OnAttach builds and validates the dispatcher, OnDetach tears it down.
type Component struct {
	caps *Capabilities
	raw  any
	opts []Option

	mu       sync.Mutex
	d        *Dispatcher
	enhanced *Enhanced
	detached bool
}

// Wrap prepares a component around caps. Nothing is validated until OnAttach.
func Wrap(caps *Capabilities, raw any, opts ...Option) *Component {
	if caps == nil {
		caps = NewCapabilities()
	}
	return &Component{
		caps: caps,
		raw:  raw,
		opts: opts,
	}
}

// OnAttach constructs the dispatcher. Configuration errors are returned as is.
// Attaching an already attached component is a no-op.
func (c *Component) OnAttach() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return ErrDisposed
	}
	if c.d != nil {
		return nil
	}

	d, err := New(c.caps, c.raw, c.opts...)
	if err != nil {
		return err
	}
	c.d = d
	c.enhanced = d.Enhanced()
	return nil
}

// OnDetach disposes the dispatcher. Only the first call has an effect.
func (c *Component) OnDetach() {
	c.mu.Lock()
	d := c.d
	c.detached = true
	c.mu.Unlock()

	if d != nil {
		d.Dispose()
	}
}

// Capabilities returns the enhanced set, or nil before OnAttach
func (c *Component) Capabilities() *Enhanced {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enhanced
}

// Dispatcher returns the underlying dispatcher, or nil before OnAttach
func (c *Component) Dispatcher() *Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.d
}

// Wrapped returns the capability set the component was built around
func (c *Component) Wrapped() *Capabilities {
	return c.caps
}
