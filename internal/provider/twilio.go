package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/remindly/reminder-engine/internal/domain"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	defaultCallVoice     = "alice"
)

// TwilioConfig holds the credentials shared by the SMS and call senders.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	CallVoice  string
}

func (c TwilioConfig) configured() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.FromNumber) != ""
}

type twilioResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioClient struct {
	cfg    TwilioConfig
	client *resty.Client
}

func newTwilioClient(cfg TwilioConfig, client *resty.Client) *twilioClient {
	cfg.BaseURL = trimBaseURL(cfg.BaseURL, defaultTwilioBaseURL)
	return &twilioClient{cfg: cfg, client: newRestyClient(client)}
}

func (t *twilioClient) create(ctx context.Context, channel domain.Channel, resource string, form map[string]string) (*Receipt, error) {
	if t == nil || !t.cfg.configured() {
		return nil, NotConfigured(channel, "twilio credentials are not configured")
	}

	var result twilioResource
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json", t.cfg.BaseURL, t.cfg.AccountSID, resource)
	response, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken).
		SetFormData(form).
		SetResult(&result).
		Post(endpoint)
	if err := checkResponse(channel, response, err); err != nil {
		return nil, err
	}

	return &Receipt{
		ID:         result.SID,
		Channel:    channel,
		StatusCode: response.StatusCode(),
	}, nil
}

// SMSSender delivers reminders through the Twilio Messages API.
// The body is passed through untruncated and provider rejections surface as errors.
type SMSSender struct {
	twilio *twilioClient
}

func NewSMSSender(cfg TwilioConfig, client *resty.Client) *SMSSender {
	return &SMSSender{twilio: newTwilioClient(cfg, client)}
}

func (s *SMSSender) Channel() domain.Channel { return domain.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, address string, msg Message) (*Receipt, error) {
	if s == nil || s.twilio == nil || !s.twilio.cfg.configured() {
		return nil, NotConfigured(domain.ChannelSMS, "twilio credentials are not configured")
	}
	to, err := requireAddress(domain.ChannelSMS, address)
	if err != nil {
		return nil, err
	}

	return s.twilio.create(ctx, domain.ChannelSMS, "Messages", map[string]string{
		"From": s.twilio.cfg.FromNumber,
		"To":   to,
		"Body": SMSBody(msg),
	})
}

// SMSBody joins the title and body on separate lines.
func SMSBody(msg Message) string {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		return msg.Body
	}
	return title + "\n" + msg.Body
}

// CallSender places an outbound Twilio call that reads the reminder aloud.
// Success means the call was initiated.
type CallSender struct {
	twilio *twilioClient
}

func NewCallSender(cfg TwilioConfig, client *resty.Client) *CallSender {
	return &CallSender{twilio: newTwilioClient(cfg, client)}
}

func (s *CallSender) Channel() domain.Channel { return domain.ChannelCall }

func (s *CallSender) Send(ctx context.Context, address string, msg Message) (*Receipt, error) {
	if s == nil || s.twilio == nil || !s.twilio.cfg.configured() {
		return nil, NotConfigured(domain.ChannelCall, "twilio credentials are not configured")
	}
	to, err := requireAddress(domain.ChannelCall, address)
	if err != nil {
		return nil, err
	}

	twiml, err := SpeechTwiML(msg, s.twilio.cfg.CallVoice)
	if err != nil {
		return nil, &ChannelError{Kind: KindProvider, Channel: domain.ChannelCall, Message: "failed to build twiml", Cause: err}
	}

	return s.twilio.create(ctx, domain.ChannelCall, "Calls", map[string]string{
		"From":  s.twilio.cfg.FromNumber,
		"To":    to,
		"Twiml": twiml,
	})
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     twimlSay `xml:"Say"`
}

type twimlSay struct {
	Voice    string `xml:"voice,attr"`
	Language string `xml:"language,attr"`
	Text     string `xml:",chardata"`
}

// SpeechTwiML renders the <Say> document spoken to the callee.
func SpeechTwiML(msg Message, voice string) (string, error) {
	if strings.TrimSpace(voice) == "" {
		voice = defaultCallVoice
	}

	text := msg.Body
	if title := strings.TrimSpace(msg.Title); title != "" {
		text = title + ". " + msg.Body
	}

	out, err := xml.Marshal(twimlResponse{
		Say: twimlSay{
			Voice:    voice,
			Language: speechLanguage(msg.Language),
			Text:     text,
		},
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func speechLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case domain.LanguageEnglish:
		return "en-US"
	default:
		return "he-IL"
	}
}
