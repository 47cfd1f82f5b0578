package dispatcher

import (
	"strings"

	"go.uber.org/zap"
)

// Policy selects how a channel reacts to a burst of triggers
type Policy string

const (
	// LeadingEdge forwards the first call of a window immediately and drops the rest
	LeadingEdge Policy = "LEADING_EDGE"
	// TrailingEdge forwards the last call of a burst once the burst has been quiet for the window
	TrailingEdge Policy = "TRAILING_EDGE"
	// Throttle forwards the window-opening call at the end of the window
	Throttle Policy = "THROTTLE"
)

// ParsePolicy maps a configured type name onto a Policy.
// Matching ignores case and accepts '-' in place of '_'.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")) {
	case LeadingEdge:
		return LeadingEdge, nil
	case TrailingEdge:
		return TrailingEdge, nil
	case Throttle:
		return Throttle, nil
	default:
		return "", &PolicyError{Type: s}
	}
}

func (p Policy) String() string {
	return string(p)
}

// policyFunc runs one trigger through a channel's state machine
type policyFunc func(st *channelState, args []any) error

// resolvePolicy binds a policy to its handler once, at construction
func (d *Dispatcher) resolvePolicy(p Policy) (policyFunc, error) {
	switch p {
	case LeadingEdge:
		return d.leadingEdge, nil
	case TrailingEdge:
		return d.trailingEdge, nil
	case Throttle:
		return d.throttle, nil
	default:
		return nil, &PolicyError{Type: string(p)}
	}
}

func (d *Dispatcher) leadingEdge(st *channelState, args []any) error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrDisposed
	}
	st.triggered.Add(1)
	// a leading window never owes a forward
	d.closeElapsedLocked(st)
	if st.blocked {
		st.mu.Unlock()
		d.drop(st)
		return nil
	}
	st.blocked = true
	d.armLocked(st, false)
	st.mu.Unlock()

	d.forward(st, args)
	return nil
}

func (d *Dispatcher) trailingEdge(st *channelState, args []any) error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrDisposed
	}
	st.triggered.Add(1)
	owed, due := d.closeElapsedLocked(st)
	if st.blocked {
		// superseded: the previous call is never forwarded
		st.dropped.Add(1)
		d.stopLocked(st)
	}
	st.blocked = true
	st.args = args
	d.armLocked(st, true)
	st.mu.Unlock()

	if due {
		d.forward(st, owed)
	}
	return nil
}

func (d *Dispatcher) throttle(st *channelState, args []any) error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrDisposed
	}
	st.triggered.Add(1)
	owed, due := d.closeElapsedLocked(st)
	if st.blocked {
		st.mu.Unlock()
		d.drop(st)
		return nil
	}
	st.blocked = true
	st.args = args
	d.armLocked(st, true)
	st.mu.Unlock()

	if due {
		d.forward(st, owed)
	}
	return nil
}

func (d *Dispatcher) drop(st *channelState) {
	st.dropped.Add(1)
	d.logger.Debug("Trigger dropped",
		zap.String("channel", st.name),
		zap.Stringer("policy", d.config.Type))
}
