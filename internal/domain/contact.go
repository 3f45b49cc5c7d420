package domain

import (
	"strings"
	"time"
)

const (
	LanguageHebrew  = "he"
	LanguageEnglish = "en"
)

// Contact holds the delivery addresses of a user as exposed by the user directory.
type Contact struct {
	UserID      string
	Name        string
	Email       string
	PhoneNumber string
	PushToken   string
	Language    string
}

// AddressFor returns the contact address used for channel, or "" when absent.
func (c *Contact) AddressFor(channel Channel) string {
	if c == nil {
		return ""
	}

	switch channel {
	case ChannelPush:
		return strings.TrimSpace(c.PushToken)
	case ChannelSMS, ChannelCall:
		return strings.TrimSpace(c.PhoneNumber)
	case ChannelEmail:
		return strings.TrimSpace(c.Email)
	}
	return ""
}

// PreferredLanguage falls back to Hebrew, the application default.
func (c *Contact) PreferredLanguage() string {
	if c == nil {
		return LanguageHebrew
	}
	switch lang := strings.ToLower(strings.TrimSpace(c.Language)); lang {
	case LanguageHebrew, LanguageEnglish:
		return lang
	}
	return LanguageHebrew
}

// TaskRef is the read-only view of a task used for display context.
type TaskRef struct {
	ID          string
	UserID      string
	Title       string
	Description string
}

// ChannelCount is one row of the per-channel sent statistics.
type ChannelCount struct {
	Channel Channel
	Count   int64
}

// StatsWindow is the time range of a statistics query.
type StatsWindow struct {
	From time.Time
	To   time.Time
}
