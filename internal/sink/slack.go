package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"actiongate/internal/config"
	"actiongate/internal/version"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SlackSink posts forwarded actions to a Slack incoming webhook
type SlackSink struct {
	config *config.SlackConfig
	logger *zap.Logger
	client *http.Client
}

// SlackMessage represents Slack message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents Slack attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

// SlackField represents Slack field
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackSink creates a Slack sink
func NewSlackSink(cfg *config.SlackConfig, logger *zap.Logger) (*SlackSink, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &SlackSink{
		config: cfg,
		logger: logger,
		client: client,
	}, nil
}

// Name returns the sink type
func (s *SlackSink) Name() Type { return TypeSlack }

// Deliver posts a message describing the event
func (s *SlackSink) Deliver(ctx context.Context, ev *Event) error {
	msg, err := s.message(ev)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API error: status=%d, body=%s", resp.StatusCode, body)
	}

	return nil
}

// message builds the Slack message for ev
func (s *SlackSink) message(ev *Event) (*SlackMessage, error) {
	args, err := json.Marshal(ev.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	title := displayName(ev.Channel)
	return &SlackMessage{
		Channel:   s.config.Channel,
		Username:  s.config.Username,
		IconEmoji: s.config.IconEmoji,
		Text:      fmt.Sprintf("*%s* forwarded in *%s*", title, ev.Group),
		Attachments: []SlackAttachment{
			{
				Color: "#36a64f",
				Title: title,
				Text:  "```" + string(args) + "```",
				Fields: []SlackField{
					{Title: "Group", Value: ev.Group, Short: true},
					{Title: "Channel", Value: ev.Channel, Short: true},
					{Title: "Event ID", Value: ev.ID, Short: false},
				},
				Footer:    "actiongate " + version.Version,
				Timestamp: ev.ForwardedAt.Unix(),
			},
		},
	}, nil
}

// Close releases idle connections
func (s *SlackSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// displayName title-cases a channel name, keeping inner capitals (onPress -> OnPress)
func displayName(channel string) string {
	return cases.Title(language.English, cases.NoLower).String(channel)
}
