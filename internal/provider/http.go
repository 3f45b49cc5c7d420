package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/remindly/reminder-engine/internal/domain"
)

const defaultHTTPTimeout = 20 * time.Second

func newRestyClient(client *resty.Client) *resty.Client {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	// Retries are owned by the dispatch state machine.
	client.SetRetryCount(0)
	return client
}

func trimBaseURL(base string, fallback string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}

// checkResponse turns a transport error or a non-2xx response into a ChannelError.
func checkResponse(channel domain.Channel, response *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &ChannelError{
			Kind:    KindNetwork,
			Channel: channel,
			Message: "provider request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return &ChannelError{
			Kind:    KindProvider,
			Channel: channel,
			Message: "provider returned empty response",
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &ChannelError{
		Kind:       KindProvider,
		Channel:    channel,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
	}
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func headerMessageID(response *resty.Response, keys ...string) string {
	if response == nil {
		return ""
	}
	for _, key := range keys {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func requireAddress(channel domain.Channel, address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", MissingAddress(channel)
	}
	return trimmed, nil
}
