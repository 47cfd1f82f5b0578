package dispatcher

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	debounced := newRecorder(clock)
	direct := newRecorder(clock)

	caps := NewCapabilities().
		Bind("onPress", debounced.action).
		Bind("onHover", direct.action).
		SetMetadata("title", "Save")

	c := Wrap(caps, map[string]any{
		"propTypesToDebounce": []string{"onPress", "onLongPress"},
		"duration":            100,
		"type":                "TRAILING_EDGE",
	}, WithClock(clock))

	assert.Nil(t, c.Capabilities())
	assert.Nil(t, c.Dispatcher())

	require.NoError(t, c.OnAttach())
	require.NoError(t, c.OnAttach())

	enhanced := c.Capabilities()
	require.NotNil(t, enhanced)
	assert.Equal(t, []string{"onHover", "onLongPress", "onPress"}, enhanced.Names())
	assert.Equal(t, map[string]any{"title": "Save"}, enhanced.Metadata())
	assert.True(t, enhanced.Debounced("onPress"))
	assert.False(t, enhanced.Debounced("onHover"))

	// pass-through actions are invoked synchronously and unthrottled
	require.NoError(t, enhanced.Call("onHover", 1))
	require.NoError(t, enhanced.Call("onHover", 2))
	assert.Equal(t, []any{1}, direct.expect(t).args)
	assert.Equal(t, []any{2}, direct.expect(t).args)

	require.NoError(t, enhanced.Call("onPress", "first"))
	require.NoError(t, enhanced.Call("onPress", "second"))
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []any{"second"}, debounced.expect(t).args)

	// debounced but unbound is inert
	require.NoError(t, enhanced.Call("onLongPress"))

	assert.ErrorIs(t, enhanced.Call("onScroll"), ErrUnknownChannel)

	// a disabled pass-through action is skipped, not unknown
	caps.Unbind("onHover")
	require.NoError(t, enhanced.Call("onHover", 3))
	direct.expectNone(t)
	assert.True(t, caps.Declared("onHover"))
	assert.False(t, caps.Declared("onScroll"))

	require.NoError(t, enhanced.Call("onPress", "pending"))
	c.OnDetach()
	c.OnDetach()
	clock.Advance(time.Second)
	debounced.expectNone(t)

	assert.ErrorIs(t, enhanced.Call("onPress"), ErrDisposed)
	assert.ErrorIs(t, c.OnAttach(), ErrDisposed)
}

func TestComponentAttachFailsOnBadConfig(t *testing.T) {
	c := Wrap(nil, map[string]any{"duration": 100})

	err := c.OnAttach()
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Nil(t, c.Capabilities())
	assert.NotNil(t, c.Wrapped())

	assert.NotPanics(t, c.OnDetach)
}

func TestEnhancedSkipsDisabledPassThrough(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	clock := clockwork.NewFakeClock()
	rec := newRecorder(clock)

	caps := NewCapabilities().Bind("onPress", rec.action).Bind("onHover", rec.action)
	c := Wrap(caps, Config{Channels: []string{"onPress"}}, WithClock(clock), WithLogger(zap.New(core)))
	require.NoError(t, c.OnAttach())
	defer c.OnDetach()

	caps.Bind("onHover", nil)
	require.NoError(t, c.Capabilities().Call("onHover", 1))
	rec.expectNone(t)

	entries := logs.FilterMessage("No action bound, call skipped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "onHover", entries[0].ContextMap()["action"])

	assert.ErrorIs(t, c.Capabilities().Call("onScroll"), ErrUnknownChannel)
}
