package provider

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/remindly/reminder-engine/internal/domain"
)

const defaultSendGridBaseURL = "https://api.sendgrid.com"

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	BaseURL   string
}

func (c SendGridConfig) configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.FromEmail) != ""
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// EmailSender delivers reminders through the SendGrid v3 mail API.
type EmailSender struct {
	cfg    SendGridConfig
	client *resty.Client
}

func NewEmailSender(cfg SendGridConfig, client *resty.Client) *EmailSender {
	cfg.BaseURL = trimBaseURL(cfg.BaseURL, defaultSendGridBaseURL)
	return &EmailSender{cfg: cfg, client: newRestyClient(client)}
}

func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, address string, msg Message) (*Receipt, error) {
	if s == nil || s.client == nil || !s.cfg.configured() {
		return nil, NotConfigured(domain.ChannelEmail, "sendgrid credentials are not configured")
	}
	to, err := requireAddress(domain.ChannelEmail, address)
	if err != nil {
		return nil, err
	}

	html := msg.HTML
	if strings.TrimSpace(html) == "" {
		html = msg.Body
	}

	reqBody := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: to}}}},
		From:             sendGridAddress{Email: s.cfg.FromEmail},
		Subject:          msg.Title,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Body},
			{Type: "text/html", Value: html},
		},
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(s.cfg.BaseURL + "/v3/mail/send")
	if err := checkResponse(domain.ChannelEmail, response, err); err != nil {
		return nil, err
	}

	return &Receipt{
		ID:         headerMessageID(response, "X-Message-Id", "X-Message-ID"),
		Channel:    domain.ChannelEmail,
		StatusCode: response.StatusCode(),
	}, nil
}

var reminderEmailTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html dir="{{.Dir}}" lang="{{.Lang}}">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f5f5f5; margin: 0; padding: 20px; }
.container { max-width: 600px; margin: 0 auto; background-color: white; border-radius: 10px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); overflow: hidden; }
.header { background: linear-gradient(135deg, #87CEEB 0%, #98FB98 50%, #DDA0DD 100%); color: white; padding: 30px; text-align: center; }
.header h1 { margin: 0; font-size: 24px; }
.content { padding: 30px; }
.message { font-size: 16px; line-height: 1.6; color: #333; white-space: pre-line; }
.footer { background-color: #f8f9fa; padding: 20px; text-align: center; color: #666; font-size: 14px; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h1>{{.Title}}</h1></div>
<div class="content"><div class="message">{{.Body}}</div></div>
<div class="footer"><p>{{.Footer}}</p></div>
</div>
</body>
</html>
`))

type emailView struct {
	Dir    string
	Lang   string
	Title  string
	Body   string
	Footer string
}

// RenderReminderHTML renders the branded HTML body of a reminder email.
// User text is escaped by html/template.
func RenderReminderHTML(msg Message) (string, error) {
	view := emailView{
		Dir:    "rtl",
		Lang:   domain.LanguageHebrew,
		Title:  msg.Title,
		Body:   msg.Body,
		Footer: "תזכורת מ-Remindly",
	}
	if strings.EqualFold(strings.TrimSpace(msg.Language), domain.LanguageEnglish) {
		view.Dir = "ltr"
		view.Lang = domain.LanguageEnglish
		view.Footer = "A reminder from Remindly"
	}

	var buf bytes.Buffer
	if err := reminderEmailTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
