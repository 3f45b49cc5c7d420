package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/remindly/reminder-engine/internal/domain"
)

type CommandType string

const (
	CommandDispatchTick     CommandType = "dispatch.tick"
	CommandDispatchReminder CommandType = "dispatch.reminder"
	CommandTaskDeleted      CommandType = "task.deleted"
	CommandReminderParsed   CommandType = "reminder.parsed"
)

// CommandMessage is the broker payload consumed from CommandQueue.
type CommandMessage struct {
	Type          CommandType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ReminderID    string          `json:"reminderId,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	TaskID        string          `json:"taskId,omitempty"`
	Reminder      *ParsedReminder `json:"reminder,omitempty"`
}

// ParsedReminder is a reminder extracted from free text by the parsing service.
type ParsedReminder struct {
	TaskID       string          `json:"taskId"`
	ReminderTime time.Time       `json:"reminderTime"`
	ReminderType domain.Channel  `json:"reminderType"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
}

func (m CommandMessage) Validate() error {
	switch m.Type {
	case CommandDispatchTick:
		return nil
	case CommandDispatchReminder:
		if strings.TrimSpace(m.ReminderID) == "" {
			return fmt.Errorf("reminderId is required for %s", m.Type)
		}
	case CommandTaskDeleted:
		if strings.TrimSpace(m.TaskID) == "" {
			return fmt.Errorf("taskId is required for %s", m.Type)
		}
	case CommandReminderParsed:
		if strings.TrimSpace(m.UserID) == "" {
			return fmt.Errorf("userId is required for %s", m.Type)
		}
		if m.Reminder == nil {
			return fmt.Errorf("reminder is required for %s", m.Type)
		}
	default:
		return fmt.Errorf("unknown command type %q", m.Type)
	}
	return nil
}

// MessageID is the broker message id used for tracing and dedup.
func (m CommandMessage) MessageID() string {
	switch {
	case m.ReminderID != "":
		return fmt.Sprintf("%s:%s", m.Type, m.ReminderID)
	case m.TaskID != "":
		return fmt.Sprintf("%s:%s", m.Type, m.TaskID)
	}
	return string(m.Type)
}

type EventOutcome string

const (
	EventSent           EventOutcome = "sent"
	EventRetryScheduled EventOutcome = "retry_scheduled"
	EventFailed         EventOutcome = "failed"
)

// DeliveryEvent is published to EventQueue after every recorded dispatch.
type DeliveryEvent struct {
	ReminderID    string                `json:"reminderId"`
	UserID        string                `json:"userId"`
	TaskID        string                `json:"taskId"`
	Channel       domain.Channel        `json:"channel"`
	Outcome       EventOutcome          `json:"outcome"`
	Status        domain.DeliveryStatus `json:"deliveryStatus"`
	RetryCount    int                   `json:"retryCount"`
	NextAttemptAt *time.Time            `json:"nextAttemptAt,omitempty"`
	ReceiptID     string                `json:"receiptId,omitempty"`
	Error         string                `json:"error,omitempty"`
	Source        string                `json:"source"`
	OccurredAt    time.Time             `json:"occurredAt"`
}

func (e DeliveryEvent) Validate() error {
	if strings.TrimSpace(e.ReminderID) == "" {
		return fmt.Errorf("reminderId is required")
	}
	if !e.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", e.Channel)
	}
	switch e.Outcome {
	case EventSent, EventRetryScheduled, EventFailed:
	default:
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}
	return nil
}
