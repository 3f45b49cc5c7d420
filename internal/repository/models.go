package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/remindly/reminder-engine/internal/domain"
)

// ReminderModel is the persistence model for the reminders table.
type ReminderModel struct {
	ID              string                 `gorm:"type:uuid;primaryKey"`
	UserID          string                 `gorm:"type:uuid;not null;index"`
	TaskID          string                 `gorm:"type:uuid;not null;index"`
	ScheduledAt     time.Time              `gorm:"not null"`
	Channel         domain.Channel         `gorm:"type:varchar(10);not null"`
	Title           string                 `gorm:"type:varchar(255);not null"`
	Message         string                 `gorm:"type:text;not null"`
	Sent            bool                   `gorm:"not null"`
	SentAt          *time.Time
	DeliveryStatus  domain.DeliveryStatus  `gorm:"type:varchar(20);not null"`
	DeliveryDetails domain.DeliveryDetails `gorm:"type:jsonb"`
	RetryCount      int                    `gorm:"not null"`
	MaxRetries      int                    `gorm:"not null"`
	IsActive        bool                   `gorm:"not null"`
	Metadata        domain.Metadata        `gorm:"type:jsonb"`
	ClaimedUntil    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ReminderModel) TableName() string {
	return "reminders"
}

// DeliveryAttemptModel is the persistence model for reminder_delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string                `gorm:"type:uuid;primaryKey"`
	ReminderID    string                `gorm:"type:uuid;not null;index"`
	Channel       domain.Channel        `gorm:"type:varchar(10);not null"`
	AttemptNumber int                   `gorm:"not null"`
	Outcome       domain.AttemptOutcome `gorm:"type:varchar(10);not null"`
	FailureKind   *domain.FailureKind   `gorm:"type:varchar(20)"`
	Error         *string               `gorm:"type:text"`
	ReceiptID     *string               `gorm:"type:varchar(255)"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "reminder_delivery_attempts"
}

// UserModel is a read model over the application's users table.
// The table is owned by the account service and never migrated here.
type UserModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string
	Email       string
	PhoneNumber *string
	Language    string
	Settings    string `gorm:"type:jsonb"`
}

func (UserModel) TableName() string {
	return "users"
}

// TaskModel is a read model over the application's tasks table.
type TaskModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	UserID      string `gorm:"type:uuid"`
	Title       string
	Description *string
}

func (TaskModel) TableName() string {
	return "tasks"
}

func reminderModelFromDomain(r *domain.Reminder) *ReminderModel {
	if r == nil {
		return nil
	}

	return &ReminderModel{
		ID:              r.ID,
		UserID:          r.UserID,
		TaskID:          r.TaskID,
		ScheduledAt:     r.ScheduledAt,
		Channel:         r.Channel,
		Title:           r.Title,
		Message:         r.Message,
		Sent:            r.Sent,
		SentAt:          r.SentAt,
		DeliveryStatus:  r.DeliveryStatus,
		DeliveryDetails: r.DeliveryDetails,
		RetryCount:      r.RetryCount,
		MaxRetries:      r.MaxRetries,
		IsActive:        r.IsActive,
		Metadata:        r.Metadata,
		ClaimedUntil:    r.ClaimedUntil,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func reminderModelToDomain(m *ReminderModel) *domain.Reminder {
	if m == nil {
		return nil
	}

	return &domain.Reminder{
		ID:              m.ID,
		UserID:          m.UserID,
		TaskID:          m.TaskID,
		ScheduledAt:     m.ScheduledAt,
		Channel:         m.Channel,
		Title:           m.Title,
		Message:         m.Message,
		Sent:            m.Sent,
		SentAt:          m.SentAt,
		DeliveryStatus:  m.DeliveryStatus,
		DeliveryDetails: m.DeliveryDetails,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		IsActive:        m.IsActive,
		Metadata:        m.Metadata,
		ClaimedUntil:    m.ClaimedUntil,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		ReminderID:    a.ReminderID,
		Channel:       a.Channel,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome,
		FailureKind:   a.FailureKind,
		Error:         a.Error,
		ReceiptID:     a.ReceiptID,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		ReminderID:    m.ReminderID,
		Channel:       m.Channel,
		AttemptNumber: m.AttemptNumber,
		Outcome:       m.Outcome,
		FailureKind:   m.FailureKind,
		Error:         m.Error,
		ReceiptID:     m.ReceiptID,
		CreatedAt:     m.CreatedAt,
	}
}

type userSettings struct {
	FCMToken string `json:"fcmToken"`
}

// UserModelToContact maps a users row to the contact view. A malformed
// settings document only drops the push token.
func UserModelToContact(m *UserModel) *domain.Contact {
	if m == nil {
		return nil
	}

	contact := &domain.Contact{
		UserID:   m.ID,
		Name:     m.Name,
		Email:    m.Email,
		Language: m.Language,
	}
	if m.PhoneNumber != nil {
		contact.PhoneNumber = *m.PhoneNumber
	}
	if raw := strings.TrimSpace(m.Settings); raw != "" {
		var settings userSettings
		if err := json.Unmarshal([]byte(raw), &settings); err == nil {
			contact.PushToken = settings.FCMToken
		}
	}
	return contact
}

func TaskModelToRef(m *TaskModel) *domain.TaskRef {
	if m == nil {
		return nil
	}

	ref := &domain.TaskRef{ID: m.ID, UserID: m.UserID, Title: m.Title}
	if m.Description != nil {
		ref.Description = *m.Description
	}
	return ref
}
