package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/remindly/reminder-engine/internal/domain"
)

const defaultFCMBaseURL = "https://fcm.googleapis.com"

// FCMConfig configures the FCM HTTP v1 sender. AccessToken is an OAuth2 bearer
// token minted for the project's service account.
type FCMConfig struct {
	ProjectID   string
	AccessToken string
	BaseURL     string
}

func (c FCMConfig) configured() bool {
	return strings.TrimSpace(c.ProjectID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
	APNS         fcmAPNS           `json:"apns"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string                 `json:"priority"`
	Notification fcmAndroidNotification `json:"notification"`
}

type fcmAndroidNotification struct {
	Sound     string `json:"sound"`
	ChannelID string `json:"channel_id,omitempty"`
}

type fcmAPNS struct {
	Payload fcmAPNSPayload `json:"payload"`
}

type fcmAPNSPayload struct {
	APS fcmAPS `json:"aps"`
}

type fcmAPS struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

// PushSender delivers reminders as FCM notifications.
type PushSender struct {
	cfg    FCMConfig
	client *resty.Client
}

func NewPushSender(cfg FCMConfig, client *resty.Client) *PushSender {
	cfg.BaseURL = trimBaseURL(cfg.BaseURL, defaultFCMBaseURL)
	return &PushSender{cfg: cfg, client: newRestyClient(client)}
}

func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

func (s *PushSender) Send(ctx context.Context, address string, msg Message) (*Receipt, error) {
	if s == nil || s.client == nil || !s.cfg.configured() {
		return nil, NotConfigured(domain.ChannelPush, "fcm credentials are not configured")
	}
	token, err := requireAddress(domain.ChannelPush, address)
	if err != nil {
		return nil, err
	}

	reqBody := fcmRequest{
		Message: fcmMessage{
			Token:        token,
			Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
			Android: fcmAndroid{
				Priority:     "high",
				Notification: fcmAndroidNotification{Sound: "default", ChannelID: "remindly_notifications"},
			},
			APNS: fcmAPNS{Payload: fcmAPNSPayload{APS: fcmAPS{Sound: "default", Badge: 1}}},
		},
	}

	var result fcmResponse
	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.cfg.BaseURL, s.cfg.ProjectID)
	response, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&result).
		Post(endpoint)
	if err := checkResponse(domain.ChannelPush, response, err); err != nil {
		return nil, err
	}

	return &Receipt{
		ID:         result.Name,
		Channel:    domain.ChannelPush,
		StatusCode: response.StatusCode(),
	}, nil
}
