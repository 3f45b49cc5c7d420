package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel of a reminder.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelCall  Channel = "call"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{ChannelPush, ChannelSMS, ChannelEmail, ChannelCall}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelSMS, ChannelEmail, ChannelCall:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// DeliveryStatus is the delivery state of a reminder.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic attempt will be made.
func (s DeliveryStatus) IsTerminal() bool {
	return s != DeliveryPending
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

const (
	DefaultMaxRetries = 3
	MaxTitleLength    = 255
)

// Reminder is a scheduled notification tied to a task and a delivery channel.
type Reminder struct {
	ID              string
	UserID          string
	TaskID          string
	ScheduledAt     time.Time
	Channel         Channel
	Title           string
	Message         string
	Sent            bool
	SentAt          *time.Time
	DeliveryStatus  DeliveryStatus
	DeliveryDetails DeliveryDetails
	RetryCount      int
	MaxRetries      int
	IsActive        bool
	Metadata        Metadata
	ClaimedUntil    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDue reports whether the reminder should be picked up by a scan at now.
func (r *Reminder) IsDue(now time.Time) bool {
	if r == nil || !r.IsActive || r.Sent || r.DeliveryStatus != DeliveryPending {
		return false
	}
	return !r.ScheduledAt.After(now)
}

func (r *Reminder) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(r.UserID) == "" {
		verr.Add("userId", "is required")
	}
	if strings.TrimSpace(r.TaskID) == "" {
		verr.Add("taskId", "is required")
	}
	if r.ScheduledAt.IsZero() {
		verr.Add("reminderTime", "is required")
	}
	if !r.Channel.IsValid() {
		verr.Add("reminderType", fmt.Sprintf("must be one of push, sms, email, call (got %q)", r.Channel))
	}

	titleLen := len([]rune(strings.TrimSpace(r.Title)))
	if titleLen == 0 {
		verr.Add("title", "is required")
	} else if titleLen > MaxTitleLength {
		verr.Add("title", fmt.Sprintf("exceeds %d characters (got %d)", MaxTitleLength, titleLen))
	}
	if strings.TrimSpace(r.Message) == "" {
		verr.Add("message", "is required")
	}

	if r.MaxRetries < 0 {
		verr.Add("maxRetries", "must be >= 0")
	}
	if r.RetryCount < 0 || r.RetryCount > r.MaxRetries {
		verr.Add("retryCount", "must be between 0 and maxRetries")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}
