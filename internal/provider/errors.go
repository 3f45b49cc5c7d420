package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/remindly/reminder-engine/internal/domain"
)

// ErrorKind normalizes the failure shapes of the channel transports.
type ErrorKind string

const (
	KindNotConfigured  ErrorKind = "not_configured"
	KindMissingAddress ErrorKind = "missing_address"
	KindProvider       ErrorKind = "provider"
	KindNetwork        ErrorKind = "network"
)

// ChannelError is the single error type returned by every Sender.
type ChannelError struct {
	Kind       ErrorKind
	Channel    domain.Channel
	StatusCode int
	Message    string
	Cause      error
}

func (e *ChannelError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("%s %s", e.Channel, e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ChannelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NotConfigured(channel domain.Channel, message string) *ChannelError {
	return &ChannelError{Kind: KindNotConfigured, Channel: channel, Message: message}
}

func MissingAddress(channel domain.Channel) *ChannelError {
	return &ChannelError{
		Kind:    KindMissingAddress,
		Channel: channel,
		Message: fmt.Sprintf("user has no %s address", addressLabel(channel)),
	}
}

func addressLabel(channel domain.Channel) string {
	switch channel {
	case domain.ChannelPush:
		return "push token"
	case domain.ChannelSMS, domain.ChannelCall:
		return "phone number"
	case domain.ChannelEmail:
		return "email"
	}
	return "contact"
}

// IsPermanent reports whether retrying err cannot change the outcome.
// Only deployment errors and missing addresses are permanent; provider
// rejections are retried until the attempt budget runs out.
func IsPermanent(err error) bool {
	var chErr *ChannelError
	if !errors.As(err, &chErr) {
		return false
	}
	return chErr.Kind == KindNotConfigured || chErr.Kind == KindMissingAddress
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !IsPermanent(err)
}

// FailureKindOf maps a send error to the persisted failure classification.
func FailureKindOf(err error) domain.FailureKind {
	if IsPermanent(err) {
		return domain.FailurePermanent
	}
	return domain.FailureTransient
}
