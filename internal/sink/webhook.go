package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"actiongate/internal/config"
	"actiongate/internal/retry"
	"actiongate/internal/version"

	"go.uber.org/zap"
)

// Webhook request headers
const (
	HeaderEvent     = "X-Actiongate-Event"
	HeaderDelivery  = "X-Actiongate-Delivery"
	HeaderSignature = "X-Actiongate-Signature"
)

// WebhookSink posts forwarded actions as JSON
type WebhookSink struct {
	config *config.WebhookConfig
	logger *zap.Logger
	client *http.Client
}

// WebhookPayload represents the webhook payload structure
type WebhookPayload struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Group     string         `json:"group"`
	Channel   string         `json:"channel"`
	Args      []any          `json:"args"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(cfg *config.WebhookConfig, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &WebhookSink{
		config: cfg,
		logger: logger,
		client: client,
	}, nil
}

// Name returns the sink type
func (s *WebhookSink) Name() Type { return TypeWebhook }

// Deliver posts the event, retrying server errors
func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	payload := WebhookPayload{
		EventType: EventType,
		EventID:   ev.ID,
		Timestamp: ev.ForwardedAt,
		Group:     ev.Group,
		Channel:   ev.Channel,
		Args:      ev.Args,
		Metadata:  ev.Metadata,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	signature := ""
	if s.config.Secret != "" {
		signature = calculateSignature(data, []byte(s.config.Secret))
	}

	return retry.Execute(ctx, &s.config.Retry, s.logger, func(ctx context.Context) error {
		return s.post(ctx, data, ev.ID, signature)
	})
}

// post sends a single request. Client errors are not retried.
func (s *WebhookSink) post(ctx context.Context, data []byte, id, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(data))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(HeaderEvent, EventType)
	req.Header.Set(HeaderDelivery, id)
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, Body)
		if err := Body.Close(); err != nil {
			s.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("webhook request failed with status %d", resp.StatusCode))
	}
	return nil
}

// Close releases idle connections
func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// calculateSignature returns the hex HMAC-SHA256 of payload
func calculateSignature(payload []byte, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
