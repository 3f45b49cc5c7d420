package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remindly/reminder-engine/internal/directory"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultStatsWindow = 30 * 24 * time.Hour

// ReminderDispatcher delivers a single reminder on demand.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (*DispatchResult, error)
}

type CreateReminderInput struct {
	UserID      string
	TaskID      string
	ScheduledAt time.Time
	Channel     domain.Channel
	Title       string
	Message     string
	MaxRetries  *int
	Metadata    domain.Metadata
}

// UpdateReminderInput holds the user-editable fields; nil fields are unchanged.
type UpdateReminderInput struct {
	ScheduledAt *time.Time
	Channel     *domain.Channel
	Title       *string
	Message     *string
	IsActive    *bool
	MaxRetries  *int
}

type ChannelStats struct {
	Window domain.StatsWindow
	Counts []domain.ChannelCount
	Total  int64
}

type ReminderService struct {
	reminders         repository.ReminderRepository
	attempts          repository.AttemptRepository
	tasks             directory.TaskDirectory
	dispatcher        ReminderDispatcher
	logger            *zap.Logger
	defaultMaxRetries int
	now               func() time.Time
}

func NewReminderService(
	reminders repository.ReminderRepository,
	attempts repository.AttemptRepository,
	tasks directory.TaskDirectory,
	dispatcher ReminderDispatcher,
	defaultMaxRetries int,
	logger *zap.Logger,
) (*ReminderService, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task directory is required")
	}
	if defaultMaxRetries < 0 {
		defaultMaxRetries = domain.DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderService{
		reminders:         reminders,
		attempts:          attempts,
		tasks:             tasks,
		dispatcher:        dispatcher,
		logger:            logger,
		defaultMaxRetries: defaultMaxRetries,
		now:               time.Now,
	}, nil
}

// Create stores a new pending reminder on a task owned by in.UserID. Blank
// title and message fall back to the task's title and description.
func (s *ReminderService) Create(ctx context.Context, in CreateReminderInput) (*domain.Reminder, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}
	if strings.TrimSpace(in.TaskID) == "" {
		return nil, domain.NewValidationError("taskId", "is required")
	}

	task, err := s.tasks.GetTask(ctx, in.UserID, in.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, in.TaskID)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	reminder := &domain.Reminder{
		UserID:         in.UserID,
		TaskID:         in.TaskID,
		ScheduledAt:    in.ScheduledAt.UTC(),
		Channel:        in.Channel,
		Title:          strings.TrimSpace(in.Title),
		Message:        strings.TrimSpace(in.Message),
		DeliveryStatus: domain.DeliveryPending,
		MaxRetries:     s.defaultMaxRetries,
		IsActive:       true,
		Metadata:       in.Metadata,
	}
	if in.MaxRetries != nil {
		reminder.MaxRetries = *in.MaxRetries
	}
	if reminder.Title == "" {
		reminder.Title = strings.TrimSpace(task.Title)
	}
	if reminder.Message == "" {
		reminder.Message = strings.TrimSpace(task.Description)
	}
	if reminder.Message == "" {
		reminder.Message = reminder.Title
	}

	if err := reminder.Validate(); err != nil {
		return nil, err
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.logger.Info("reminder created",
		zap.String("reminderId", reminder.ID),
		zap.String("channel", reminder.Channel.String()),
		zap.Time("scheduledAt", reminder.ScheduledAt),
	)
	return reminder, nil
}

func (s *ReminderService) Get(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
	return s.reminders.GetForUser(ctx, userID, id)
}

func (s *ReminderService) List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
	if params.Upcoming && params.Now.IsZero() {
		params.Now = s.now().UTC()
	}
	return s.reminders.List(ctx, params.Normalize())
}

// Update edits an unsent reminder. Moving a failed reminder to a new time
// gives it a fresh retry budget.
func (s *ReminderService) Update(ctx context.Context, userID string, id string, in UpdateReminderInput) (*domain.Reminder, error) {
	current, err := s.reminders.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if current.Sent {
		return nil, domain.ErrAlreadySent
	}

	changes := repository.ReminderChanges{
		Channel:    in.Channel,
		IsActive:   in.IsActive,
		MaxRetries: in.MaxRetries,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		changes.Title = &title
	}
	if in.Message != nil {
		message := strings.TrimSpace(*in.Message)
		changes.Message = &message
	}
	rescheduled := false
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		rescheduled = !at.Equal(current.ScheduledAt)
		changes.ScheduledAt = &at
	}

	if err := previewChanges(*current, changes).Validate(); err != nil {
		return nil, err
	}

	updated, err := s.reminders.Update(ctx, userID, id, changes)
	if err != nil {
		return nil, err
	}
	if !rescheduled || updated.DeliveryStatus != domain.DeliveryFailed {
		return updated, nil
	}

	revived, err := s.reminders.ReviveFailed(ctx, userID, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !revived {
		return updated, nil
	}
	s.logger.Info("failed reminder rescheduled", zap.String("reminderId", id))
	return s.reminders.GetForUser(ctx, userID, id)
}

// previewChanges applies changes to a copy of r for validation.
func previewChanges(r domain.Reminder, c repository.ReminderChanges) *domain.Reminder {
	if c.ScheduledAt != nil {
		r.ScheduledAt = *c.ScheduledAt
	}
	if c.Channel != nil {
		r.Channel = *c.Channel
	}
	if c.Title != nil {
		r.Title = *c.Title
	}
	if c.Message != nil {
		r.Message = *c.Message
	}
	if c.IsActive != nil {
		r.IsActive = *c.IsActive
	}
	if c.MaxRetries != nil {
		r.MaxRetries = *c.MaxRetries
		r.RetryCount = min(r.RetryCount, max(r.MaxRetries, 0))
	}
	return &r
}

func (s *ReminderService) Delete(ctx context.Context, userID string, id string) error {
	return s.reminders.Delete(ctx, userID, id)
}

// SendNow dispatches a reminder immediately regardless of its scheduled time.
// Delivery failures are reported in the result, not as an error.
func (s *ReminderService) SendNow(ctx context.Context, userID string, id string) (*DispatchResult, error) {
	if s.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is not configured")
	}

	reminder, err := s.reminders.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if reminder.Sent {
		return nil, domain.ErrAlreadySent
	}

	return s.dispatcher.Dispatch(ctx, reminder, SourceManual)
}

// DispatchByID is the broker variant of SendNow; it is not scoped to a user.
func (s *ReminderService) DispatchByID(ctx context.Context, id string) (*DispatchResult, error) {
	if s.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is not configured")
	}

	reminder, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Dispatch(ctx, reminder, SourceCommand)
}

func (s *ReminderService) Attempts(ctx context.Context, userID string, id string) ([]domain.DeliveryAttempt, error) {
	if s.attempts == nil {
		return nil, fmt.Errorf("attempt repository is not configured")
	}
	if _, err := s.reminders.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.attempts.GetByReminderID(ctx, id)
}

// Stats counts sent reminders per channel. A missing bound defaults to the
// last 30 days ending now; every channel is present in the result.
func (s *ReminderService) Stats(ctx context.Context, userID string, from *time.Time, to *time.Time) (*ChannelStats, error) {
	end := s.now().UTC()
	if to != nil {
		end = to.UTC()
	}
	start := end.Add(-defaultStatsWindow)
	if from != nil {
		start = from.UTC()
	}
	if start.After(end) {
		return nil, domain.NewValidationError("startDate", "must not be after endDate")
	}

	rows, err := s.reminders.CountSentByChannel(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count sent reminders: %w", err)
	}

	byChannel := make(map[domain.Channel]int64, len(rows))
	for _, row := range rows {
		byChannel[row.Channel] += row.Count
	}

	stats := &ChannelStats{
		Window: domain.StatsWindow{From: start, To: end},
		Counts: make([]domain.ChannelCount, 0, len(domain.Channels)),
	}
	for _, ch := range domain.Channels {
		count := byChannel[ch]
		stats.Counts = append(stats.Counts, domain.ChannelCount{Channel: ch, Count: count})
		stats.Total += count
	}
	return stats, nil
}

// DeleteByTask removes every reminder of a deleted task.
func (s *ReminderService) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	if strings.TrimSpace(taskID) == "" {
		return 0, domain.NewValidationError("taskId", "is required")
	}

	deleted, err := s.reminders.DeleteByTaskID(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminders of task %s: %w", taskID, err)
	}
	s.logger.Info("task reminders deleted", zap.String("taskId", taskID), zap.Int64("count", deleted))
	return deleted, nil
}
