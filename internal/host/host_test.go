package host

import (
	"context"
	"testing"
	"time"

	"actiongate/internal/config"
	"actiongate/internal/dispatcher"
	"actiongate/internal/sink"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type chanPublisher chan *sink.Event

func (p chanPublisher) Publish(ev *sink.Event) bool {
	p <- ev
	return true
}

func (p chanPublisher) expect(t *testing.T) *sink.Event {
	t.Helper()
	select {
	case ev := <-p:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
		return nil
	}
}

func (p chanPublisher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-p:
		t.Fatalf("unexpected event %s", ev.Key())
	case <-time.After(50 * time.Millisecond):
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Groups: []config.GroupConfig{
			{
				Name:     "editor",
				Channels: []string{"save", "search"},
				Duration: 100 * time.Millisecond,
				Type:     "TRAILING_EDGE",
				Actions:  []string{"save", "close"},
				Metadata: map[string]any{"title": "Editor"},
			},
			{
				Name:     "buttons",
				Channels: []string{"onPress"},
				Duration: 200 * time.Millisecond,
				Actions:  []string{"onPress"},
			},
		},
	}
}

func newTestHost(t *testing.T, cfg *config.Config) (*Host, chanPublisher, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	pub := make(chanPublisher, 16)
	h := New(cfg, pub, zaptest.NewLogger(t), WithClock(clock))
	t.Cleanup(func() { _ = h.Stop() })
	return h, pub, clock
}

func TestHostTrigger(t *testing.T) {
	h, pub, clock := newTestHost(t, testConfig())

	assert.ErrorIs(t, h.Trigger("editor", "save"), ErrNotStarted)
	require.NoError(t, h.Start(context.Background()))

	// trailing edge: only the latest args are forwarded
	require.NoError(t, h.Trigger("editor", "save", "v1"))
	require.NoError(t, h.Trigger("editor", "save", "v2"))
	pub.expectNone(t)
	clock.Advance(100 * time.Millisecond)

	ev := pub.expect(t)
	assert.Equal(t, "editor", ev.Group)
	assert.Equal(t, "save", ev.Channel)
	assert.Equal(t, []any{"v2"}, ev.Args)
	assert.Equal(t, map[string]any{"title": "Editor"}, ev.Metadata)
	assert.Equal(t, clock.Now(), ev.ForwardedAt)

	// not debounced, passes straight through
	require.NoError(t, h.Trigger("editor", "close", 1))
	require.NoError(t, h.Trigger("editor", "close", 2))
	assert.Equal(t, []any{1}, pub.expect(t).Args)
	assert.Equal(t, []any{2}, pub.expect(t).Args)

	// leading edge on the default policy
	require.NoError(t, h.Trigger("buttons", "onPress"))
	require.NoError(t, h.Trigger("buttons", "onPress"))
	assert.Equal(t, "buttons/onPress", pub.expect(t).Key())
	pub.expectNone(t)
}

func TestHostInertChannel(t *testing.T) {
	h, pub, clock := newTestHost(t, testConfig())
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Trigger("editor", "search", "q"))
	clock.Advance(time.Second)
	pub.expectNone(t)
}

func TestHostTriggerErrors(t *testing.T) {
	h, _, _ := newTestHost(t, testConfig())
	require.NoError(t, h.Start(context.Background()))

	assert.ErrorIs(t, h.Trigger("missing", "save"), ErrGroupNotFound)
	assert.ErrorIs(t, h.Trigger("editor", "scroll"), dispatcher.ErrUnknownChannel)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.Trigger("editor", "save"), dispatcher.ErrDisposed)
	assert.ErrorIs(t, h.Trigger("editor", "close"), dispatcher.ErrDisposed)
	assert.ErrorIs(t, h.Start(context.Background()), dispatcher.ErrDisposed)
}

func TestHostRebind(t *testing.T) {
	h, pub, _ := newTestHost(t, testConfig())
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Rebind("buttons", "onPress", false))
	require.NoError(t, h.Trigger("buttons", "onPress"))
	pub.expectNone(t)

	status, err := h.Group("buttons")
	require.NoError(t, err)
	assert.Empty(t, status.Bound)

	require.NoError(t, h.Rebind("buttons", "onPress", true))

	// the first press opened a window even though nothing was bound
	status, err = h.Group("buttons")
	require.NoError(t, err)
	assert.True(t, status.Channels[0].Blocked)
	assert.Equal(t, []string{"onPress"}, status.Bound)

	assert.ErrorIs(t, h.Rebind("buttons", "onHover", true), dispatcher.ErrUnknownChannel)
	assert.ErrorIs(t, h.Rebind("missing", "onPress", true), ErrGroupNotFound)
}

func TestHostDisabledPassThroughAction(t *testing.T) {
	h, pub, _ := newTestHost(t, testConfig())
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Rebind("editor", "close", false))
	require.NoError(t, h.Trigger("editor", "close"))
	pub.expectNone(t)

	// disabled debounced channels behave the same way
	require.NoError(t, h.Rebind("editor", "save", false))
	require.NoError(t, h.Trigger("editor", "save"))

	require.NoError(t, h.Rebind("editor", "close", true))
	require.NoError(t, h.Trigger("editor", "close", 1))
	assert.Equal(t, []any{1}, pub.expect(t).Args)
}

func TestHostRebindIsReadOnForward(t *testing.T) {
	h, pub, clock := newTestHost(t, testConfig())
	require.NoError(t, h.Start(context.Background()))

	// search is debounced but unbound until rebound
	require.NoError(t, h.Trigger("editor", "search", "q"))
	require.NoError(t, h.Rebind("editor", "search", true))
	clock.Advance(100 * time.Millisecond)

	ev := pub.expect(t)
	assert.Equal(t, "search", ev.Channel)
	assert.Equal(t, []any{"q"}, ev.Args)
}

func TestHostStartFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Groups = append(cfg.Groups, config.GroupConfig{
		Name:     "broken",
		Channels: []string{"x"},
		Type:     "SOMETIMES",
	})
	h, _, _ := newTestHost(t, cfg)

	err := h.Start(context.Background())
	assert.ErrorIs(t, err, dispatcher.ErrUnrecognizedPolicy)
	assert.ErrorContains(t, err, "attach group broken")

	for _, st := range h.Groups() {
		assert.False(t, st.Attached, st.Name)
	}
}

func TestHostReportsUnresolvedGroup(t *testing.T) {
	cfg := testConfig()
	cfg.Groups = append(cfg.Groups, config.GroupConfig{
		Name:     "negative",
		Channels: []string{"x"},
		Duration: -time.Second,
	})
	core, logs := observer.New(zapcore.WarnLevel)
	h := New(cfg, make(chanPublisher, 1), zap.New(core), WithClock(clockwork.NewFakeClock()))
	t.Cleanup(func() { _ = h.Stop() })

	entries := logs.FilterMessage("Group configuration rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "negative", entries[0].ContextMap()["group"])

	status, err := h.Group("negative")
	require.NoError(t, err)
	assert.Contains(t, status.Error, "duration")
	assert.False(t, status.Attached)

	editor, err := h.Group("editor")
	require.NoError(t, err)
	assert.Empty(t, editor.Error)

	err = h.Start(context.Background())
	assert.ErrorIs(t, err, dispatcher.ErrInvalidDuration)
	assert.ErrorContains(t, err, "attach group negative")
}

func TestHostStartCanceled(t *testing.T) {
	h, _, _ := newTestHost(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Start(ctx), context.Canceled)
}

func TestHostGroups(t *testing.T) {
	h, _, _ := newTestHost(t, testConfig())

	groups := h.Groups()
	require.Len(t, groups, 2)
	assert.False(t, groups[0].Attached)
	assert.Empty(t, groups[0].Channels)

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Trigger("buttons", "onPress"))

	groups = h.Groups()
	editor := groups[0]
	assert.Equal(t, "editor", editor.Name)
	assert.Equal(t, dispatcher.TrailingEdge, editor.Policy)
	assert.Equal(t, int64(100), editor.DurationMS)
	assert.True(t, editor.Attached)
	assert.Equal(t, []string{"close", "save"}, editor.Bound)
	require.Len(t, editor.Channels, 2)
	assert.Equal(t, "save", editor.Channels[0].Name)
	assert.Equal(t, "search", editor.Channels[1].Name)

	buttons := groups[1]
	assert.Equal(t, dispatcher.LeadingEdge, buttons.Policy)
	assert.Equal(t, int64(200), buttons.DurationMS)
	assert.Equal(t, dispatcher.ChannelStats{Name: "onPress", Blocked: true, Triggered: 1, Forwarded: 1}, buttons.Channels[0])

	_, err := h.Group("missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
