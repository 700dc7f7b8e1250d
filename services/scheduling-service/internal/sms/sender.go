package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookSender posts {"to", "body", "channel"} to a provider webhook. It serves both the SMS and
// WhatsApp channels; only the provider name differs.
type WebhookSender struct {
	provider string
	url      string
	token    string
	http     *http.Client
}

func NewWebhookSender(provider, url, token string) *WebhookSender {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "sms"
	}
	return &WebhookSender{
		provider: provider,
		url:      strings.TrimSpace(url),
		token:    strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return s.provider + "-webhook"
}

// Send ignores subject; text channels only carry the body. The provider's message id is
// returned when the response includes one.
func (s *WebhookSender) Send(ctx context.Context, to, _, body string) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("%s webhook url not configured", s.provider)
	}
	raw, err := json.Marshal(map[string]string{
		"to":      to,
		"body":    body,
		"channel": s.provider,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s webhook returned %d", s.provider, resp.StatusCode)
	}

	var ack struct {
		ID string `json:"id"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(data) > 0 && json.Unmarshal(data, &ack) == nil && ack.ID != "" {
		return ack.ID, nil
	}
	return s.ProviderID(), nil
}

// NoopSender accepts everything; used when no provider is configured.
type NoopSender struct {
	provider string
}

func NewNoopSender(provider string) *NoopSender {
	return &NoopSender{provider: provider}
}

func (s *NoopSender) ProviderID() string {
	return s.provider + "-noop"
}

func (s *NoopSender) Send(_ context.Context, to, _, _ string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", errors.New("empty recipient")
	}
	return s.ProviderID(), nil
}
