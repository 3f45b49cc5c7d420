package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/remindly/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ListParams struct {
	UserID   string
	Channel  *domain.Channel
	Sent     *bool
	Upcoming bool
	Now      time.Time
	Page     int
	PageSize int
}

// Normalize applies paging defaults and bounds.
func (p ListParams) Normalize() ListParams {
	p.Page = max(p.Page, 1)
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	p.PageSize = min(p.PageSize, maxPageSize)
	return p
}

type ReminderRepository interface {
	Create(ctx context.Context, r *domain.Reminder) error
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	GetForUser(ctx context.Context, userID string, id string) (*domain.Reminder, error)
	List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error)
	Update(ctx context.Context, userID string, id string, changes ReminderChanges) (*domain.Reminder, error)
	ReviveFailed(ctx context.Context, userID string, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, userID string, id string) error
	DeleteByTaskID(ctx context.Context, taskID string) (int64, error)
	CountSentByChannel(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.ChannelCount, error)

	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error)
	Claim(ctx context.Context, id string, now time.Time, leaseUntil time.Time, manual bool) (*domain.Reminder, error)
	ReleaseClaim(ctx context.Context, id string) error
	RecordOutcome(ctx context.Context, id string, outcome domain.Outcome) error
}

type GormReminderRepo struct {
	db *gorm.DB
}

func NewGormReminderRepo(db *gorm.DB) *GormReminderRepo {
	return &GormReminderRepo{db: db}
}

func (r *GormReminderRepo) Create(ctx context.Context, reminder *domain.Reminder) error {
	if reminder != nil && reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	model := reminderModelFromDomain(reminder)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if reminder != nil {
		*reminder = *reminderModelToDomain(model)
	}
	return nil
}

func (r *GormReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) GetForUser(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error) {
	params = params.Normalize()
	query := r.db.WithContext(ctx).Model(&ReminderModel{}).Where("user_id = ?", params.UserID)

	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.Sent != nil {
		query = query.Where("sent = ?", *params.Sent)
	}
	if params.Upcoming {
		now := params.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		query = query.Where("scheduled_at >= ?", now)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []ReminderModel
	err := query.
		Order("scheduled_at ASC, id ASC").
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, total, nil
}

// ReminderChanges holds user edits; nil fields keep their stored value.
// Delivery state is owned by RecordOutcome and ReviveFailed and is never
// written from here.
type ReminderChanges struct {
	ScheduledAt *time.Time
	Channel     *domain.Channel
	Title       *string
	Message     *string
	IsActive    *bool
	MaxRetries  *int
}

func (c ReminderChanges) columns() map[string]any {
	cols := map[string]any{}
	if c.ScheduledAt != nil {
		cols["scheduled_at"] = c.ScheduledAt.UTC()
	}
	if c.Channel != nil {
		cols["channel"] = *c.Channel
	}
	if c.Title != nil {
		cols["title"] = *c.Title
	}
	if c.Message != nil {
		cols["message"] = *c.Message
	}
	if c.IsActive != nil {
		cols["is_active"] = *c.IsActive
	}
	if c.MaxRetries != nil {
		n := max(*c.MaxRetries, 0)
		cols["max_retries"] = n
		// Lowering the budget clamps the stored count in place.
		cols["retry_count"] = gorm.Expr("CASE WHEN retry_count > ? THEN ? ELSE retry_count END", n, n)
	}
	return cols
}

// Update applies user edits to an unsent reminder and returns the stored row.
func (r *GormReminderRepo) Update(ctx context.Context, userID string, id string, changes ReminderChanges) (*domain.Reminder, error) {
	cols := changes.columns()
	if len(cols) == 0 {
		existing, err := r.GetForUser(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if existing.Sent {
			return nil, domain.ErrAlreadySent
		}
		return existing, nil
	}

	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND user_id = ? AND sent = ?", id, userID, false).
		Updates(cols)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := r.GetForUser(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if existing.Sent {
			return nil, domain.ErrAlreadySent
		}
		return nil, domain.ErrConflict
	}

	return r.GetForUser(ctx, userID, id)
}

// ReviveFailed moves a failed, unclaimed reminder back to pending with a fresh
// retry budget, keeping its error history. It reports false when the reminder
// is no longer failed or a dispatcher holds it.
func (r *GormReminderRepo) ReviveFailed(ctx context.Context, userID string, id string, now time.Time) (bool, error) {
	revived := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ReminderModel
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		result := tx.Model(&ReminderModel{}).
			Where("id = ? AND user_id = ? AND sent = ? AND delivery_status = ?", id, userID, false, domain.DeliveryFailed).
			Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
			Updates(map[string]any{
				"delivery_status":  domain.DeliveryPending,
				"retry_count":      0,
				"delivery_details": domain.DeliveryDetails{Errors: model.DeliveryDetails.Errors},
			})
		if result.Error != nil {
			return result.Error
		}
		revived = result.RowsAffected > 0
		return nil
	})
	return revived, err
}

func (r *GormReminderRepo) Delete(ctx context.Context, userID string, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&ReminderModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Where("reminder_id = ?", id).Delete(&DeliveryAttemptModel{}).Error
	})
}

// DeleteByTaskID removes every reminder of a task along with its audit log.
func (r *GormReminderRepo) DeleteByTaskID(ctx context.Context, taskID string) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&ReminderModel{}).Select("id").Where("task_id = ?", taskID)
		if err := tx.Where("reminder_id IN (?)", ids).Delete(&DeliveryAttemptModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("task_id = ?", taskID).Delete(&ReminderModel{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

type channelCountRow struct {
	Channel domain.Channel `gorm:"column:channel"`
	Count   int64          `gorm:"column:count"`
}

func (r *GormReminderRepo) CountSentByChannel(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.ChannelCount, error) {
	var rows []channelCountRow
	err := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Select("channel, COUNT(*) as count").
		Where("user_id = ? AND sent = ? AND sent_at BETWEEN ? AND ?", userID, true, from, to).
		Group("channel").
		Order("channel ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make([]domain.ChannelCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, domain.ChannelCount{Channel: row.Channel, Count: row.Count})
	}
	return counts, nil
}

// FindDue returns active, unsent, pending reminders scheduled at or before now
// that are not leased by another dispatcher, oldest first.
func (r *GormReminderRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND sent = ? AND delivery_status = ? AND scheduled_at <= ?", true, false, domain.DeliveryPending, now).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Order("scheduled_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []ReminderModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}
	return reminders, nil
}

// Claim leases an unsent reminder until leaseUntil with a compare-and-set update.
// A manual claim also accepts failed or inactive reminders and moves them back to pending.
func (r *GormReminderRepo) Claim(ctx context.Context, id string, now time.Time, leaseUntil time.Time, manual bool) (*domain.Reminder, error) {
	query := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND sent = ?", id, false).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now)

	updates := map[string]any{"claimed_until": leaseUntil}
	if manual {
		query = query.Where("delivery_status IN ?", []domain.DeliveryStatus{domain.DeliveryPending, domain.DeliveryFailed})
		updates["delivery_status"] = domain.DeliveryPending
	} else {
		query = query.Where("is_active = ? AND delivery_status = ? AND scheduled_at <= ?", true, domain.DeliveryPending, now)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyProcessed
	}

	return r.GetByID(ctx, id)
}

func (r *GormReminderRepo) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ?", id).
		Update("claimed_until", nil).Error
}

// RecordOutcome applies a dispatch outcome and appends its attempt in one
// transaction. It fails with ErrAlreadyProcessed when the reminder already
// left the pending state.
func (r *GormReminderRepo) RecordOutcome(ctx context.Context, id string, outcome domain.Outcome) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"sent":             outcome.Sent,
			"delivery_status":  outcome.DeliveryStatus,
			"delivery_details": outcome.Details,
			"retry_count":      outcome.RetryCount,
			"claimed_until":    nil,
		}
		if outcome.SentAt != nil {
			updates["sent_at"] = *outcome.SentAt
		}
		if outcome.ScheduledAt != nil {
			updates["scheduled_at"] = *outcome.ScheduledAt
		}

		result := tx.Model(&ReminderModel{}).
			Where("id = ? AND sent = ? AND delivery_status = ?", id, false, domain.DeliveryPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrAlreadyProcessed
		}

		attempt := attemptModelFromDomain(&outcome.Attempt)
		attempt.ReminderID = id
		if attempt.ID == "" {
			attempt.ID = uuid.NewString()
		}
		return tx.Create(attempt).Error
	})
}
