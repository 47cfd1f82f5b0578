package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"actiongate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSlackSinkDeliver(t *testing.T) {
	received := make(chan SlackMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg SlackMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received <- msg
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewSlackSink(&config.SlackConfig{
		WebhookURL: server.URL,
		Channel:    "#actions",
		Username:   "actiongate",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	at := time.Unix(1700000000, 0)
	ev := NewEvent("buttons", "onPress", []any{"x"}, at)
	require.NoError(t, s.Deliver(context.Background(), ev))

	msg := <-received
	assert.Equal(t, "#actions", msg.Channel)
	assert.Equal(t, "actiongate", msg.Username)
	assert.Equal(t, "*OnPress* forwarded in *buttons*", msg.Text)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "OnPress", msg.Attachments[0].Title)
	assert.Equal(t, "```[\"x\"]```", msg.Attachments[0].Text)
	assert.Equal(t, at.Unix(), msg.Attachments[0].Timestamp)
	assert.Equal(t, ev.ID, msg.Attachments[0].Fields[2].Value)
}

func TestSlackSinkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	s, err := NewSlackSink(&config.SlackConfig{WebhookURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = s.Deliver(context.Background(), NewEvent("buttons", "onPress", nil, time.Now()))
	assert.EqualError(t, err, "slack API error: status=403, body=invalid_token")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Save", displayName("save"))
	assert.Equal(t, "OnPress", displayName("onPress"))
	assert.Equal(t, "Search Box", displayName("search box"))
}
