package service

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/provider"
)

const (
	defaultRetryBaseDelay = time.Minute
	defaultRetryFactor    = 2
)

// BackoffPolicy computes retry delays as BaseDelay * Factor^k, capped by
// MaxDelay when it is positive.
type BackoffPolicy struct {
	BaseDelay time.Duration
	Factor    float64
	MaxDelay  time.Duration
}

// DefaultBackoffPolicy waits 2^k minutes before retry k.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{BaseDelay: defaultRetryBaseDelay, Factor: defaultRetryFactor}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.Factor < 1 {
		p.Factor = defaultRetryFactor
	}
	return p
}

// Delay returns the wait before the retry that follows the k-th failure.
func (p BackoffPolicy) Delay(k int) time.Duration {
	p = p.normalized()
	if k < 0 {
		k = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(k))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Decide turns the result of one send into the delivery-field update for r.
// A nil sendErr is a success. Permanent errors fail the reminder at once;
// transient ones reschedule it until the retry budget is spent.
func (p BackoffPolicy) Decide(r domain.Reminder, receipt *provider.Receipt, sendErr error, now time.Time) domain.Outcome {
	maxRetries := max(r.MaxRetries, 0)
	retryCount := min(max(r.RetryCount, 0), maxRetries)

	attempt := domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		ReminderID:    r.ID,
		Channel:       r.Channel,
		AttemptNumber: retryCount + 1,
		CreatedAt:     now,
	}

	if sendErr == nil {
		receiptID := ""
		if receipt != nil {
			receiptID = receipt.ID
		}
		attempt.Outcome = domain.AttemptSuccess
		if receiptID != "" {
			attempt.ReceiptID = &receiptID
		}
		sentAt := now
		return domain.Outcome{
			Sent:           true,
			SentAt:         &sentAt,
			DeliveryStatus: domain.DeliverySent,
			Details:        domain.SentDetails(r.DeliveryDetails, receiptID),
			RetryCount:     retryCount,
			Attempt:        attempt,
		}
	}

	errMsg := sendErr.Error()
	kind := provider.FailureKindOf(sendErr)
	attempt.Outcome = domain.AttemptFailure
	attempt.Error = &errMsg
	attempt.FailureKind = &kind

	if kind == domain.FailurePermanent {
		return domain.Outcome{
			DeliveryStatus: domain.DeliveryFailed,
			Details:        domain.PermanentDetails(r.DeliveryDetails, errMsg, retryCount, false),
			RetryCount:     retryCount,
			Attempt:        attempt,
		}
	}

	next := retryCount + 1
	if next < maxRetries {
		scheduledAt := now.Add(p.Delay(next))
		if scheduledAt.Before(r.ScheduledAt) {
			scheduledAt = r.ScheduledAt
		}
		return domain.Outcome{
			DeliveryStatus: domain.DeliveryPending,
			Details:        domain.TransientDetails(r.DeliveryDetails, errMsg, next),
			RetryCount:     next,
			ScheduledAt:    &scheduledAt,
			Attempt:        attempt,
		}
	}

	exhausted := min(next, maxRetries)
	return domain.Outcome{
		DeliveryStatus: domain.DeliveryFailed,
		Details:        domain.PermanentDetails(r.DeliveryDetails, errMsg, exhausted, true),
		RetryCount:     exhausted,
		Attempt:        attempt,
	}
}
