package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/remindly/reminder-engine/internal/domain"
)

type webhookRequest struct {
	To      string            `json:"to"`
	Channel string            `json:"channel"`
	Title   string            `json:"title"`
	Content string            `json:"content"`
	Data    map[string]string `json:"data,omitempty"`
}

// WebhookSender posts reminders to a webhook.site-compatible endpoint instead of
// the real provider. One instance is registered per channel in sandbox mode.
type WebhookSender struct {
	channel  domain.Channel
	client   *resty.Client
	endpoint string
}

func NewWebhookSender(channel domain.Channel, endpoint string) (*WebhookSender, error) {
	return NewWebhookSenderWithClient(channel, endpoint, resty.New())
}

func NewWebhookSenderWithClient(channel domain.Channel, endpoint string, client *resty.Client) (*WebhookSender, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid channel %q", channel)
	}
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &WebhookSender{
		channel:  channel,
		client:   newRestyClient(client),
		endpoint: trimmedEndpoint,
	}, nil
}

// NewSandboxRegistry routes every channel to the same webhook endpoint.
func NewSandboxRegistry(endpoint string) (*Registry, error) {
	client := resty.New()
	registry := NewRegistry()
	for _, channel := range domain.Channels {
		sender, err := NewWebhookSenderWithClient(channel, endpoint, client)
		if err != nil {
			return nil, err
		}
		registry.Register(sender)
	}
	return registry, nil
}

func (p *WebhookSender) Channel() domain.Channel { return p.channel }

func (p *WebhookSender) Send(ctx context.Context, address string, msg Message) (*Receipt, error) {
	if p == nil {
		return nil, fmt.Errorf("webhook sender is not initialized")
	}
	if p.client == nil {
		return nil, NotConfigured(p.channel, "webhook sender is not initialized")
	}
	to, err := requireAddress(p.channel, address)
	if err != nil {
		return nil, err
	}

	reqBody := webhookRequest{
		To:      to,
		Channel: p.channel.String(),
		Title:   msg.Title,
		Content: msg.Body,
		Data:    msg.Data,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(p.endpoint)
	if err := checkResponse(p.channel, response, err); err != nil {
		return nil, err
	}

	return &Receipt{
		ID:         headerMessageID(response, "X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"),
		Channel:    p.channel,
		StatusCode: response.StatusCode(),
	}, nil
}
