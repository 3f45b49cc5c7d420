package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/remindly/reminder-engine/internal/directory"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChannelSendStatus is the result of one channel in an immediate task reminder.
type ChannelSendStatus string

const (
	ChannelSendSent      ChannelSendStatus = "sent"
	ChannelSendFailed    ChannelSendStatus = "failed"
	ChannelSendThrottled ChannelSendStatus = "throttled"
)

type ChannelDelivery struct {
	Channel     domain.Channel
	Status      ChannelSendStatus
	ReceiptID   string
	Error       string
	FailureKind domain.FailureKind
}

// NotifyTask sends task to userID on every channel right away. Nothing is
// stored and nothing is retried; each channel reports its own result.
func (d *Dispatcher) NotifyTask(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("taskId", task.ID),
		zap.String("source", string(SourceTask)),
	)

	contact, err := d.contacts.GetContact(ctx, userID)
	unknownUser := errors.Is(err, domain.ErrNotFound)
	if err != nil && !unknownUser {
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}

	deliveries := make([]ChannelDelivery, len(channels))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, channel := range channels {
		g.Go(func() error {
			chLogger := logger.With(zap.String("channel", channel.String()))
			reminder := &domain.Reminder{
				UserID:  userID,
				TaskID:  task.ID,
				Channel: channel,
				Title:   task.Title,
				Message: task.Description,
			}

			var receipt *provider.Receipt
			var sendErr error
			if unknownUser {
				sendErr = provider.MissingAddress(channel)
			} else {
				receipt, sendErr = d.send(ctx, reminder, contact, chLogger)
			}
			deliveries[i] = d.channelDelivery(channel, receipt, sendErr, chLogger)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return deliveries, nil
}

func (d *Dispatcher) channelDelivery(channel domain.Channel, receipt *provider.Receipt, sendErr error, logger *zap.Logger) ChannelDelivery {
	out := ChannelDelivery{Channel: channel}
	switch {
	case sendErr == nil:
		out.Status = ChannelSendSent
		if receipt != nil {
			out.ReceiptID = receipt.ID
		}
		d.metrics.IncReminderSent(channel.String())
		logger.Info("task reminder delivered", zap.String("receiptId", out.ReceiptID))
	case errors.Is(sendErr, domain.ErrThrottled):
		out.Status = ChannelSendThrottled
		out.Error = sendErr.Error()
		d.metrics.IncReminderThrottled(channel.String())
		logger.Warn("task reminder throttled", zap.Error(sendErr))
	default:
		out.Status = ChannelSendFailed
		out.Error = sendErr.Error()
		out.FailureKind = provider.FailureKindOf(sendErr)
		d.metrics.IncReminderFailed(channel.String(), string(out.FailureKind))
		logger.Warn("task reminder delivery failed", zap.Error(sendErr))
	}
	return out
}

// TaskNotifier sends an unscheduled reminder for a task.
type TaskNotifier interface {
	NotifyTask(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error)
}

type TaskReminderResult struct {
	TaskID     string
	Deliveries []ChannelDelivery
}

// Sent counts channels that accepted the reminder.
func (r *TaskReminderResult) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == ChannelSendSent {
			n++
		}
	}
	return n
}

// NotificationService handles on-demand notifications that bypass the
// reminder schedule.
type NotificationService struct {
	tasks    directory.TaskDirectory
	notifier TaskNotifier
	logger   *zap.Logger
}

func NewNotificationService(tasks directory.TaskDirectory, notifier TaskNotifier, logger *zap.Logger) (*NotificationService, error) {
	if tasks == nil {
		return nil, fmt.Errorf("task directory is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("task notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{tasks: tasks, notifier: notifier, logger: logger}, nil
}

// SendTaskReminder notifies the owner of taskID on each listed channel now.
// Duplicate channels are sent once, in first-seen order.
func (s *NotificationService) SendTaskReminder(ctx context.Context, userID string, taskID string, channels []domain.Channel) (*TaskReminderResult, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, domain.NewValidationError("taskId", "is required")
	}
	unique, err := uniqueChannels(channels)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetTask(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	deliveries, err := s.notifier.NotifyTask(ctx, userID, *task, unique)
	if err != nil {
		return nil, err
	}

	result := &TaskReminderResult{TaskID: task.ID, Deliveries: deliveries}
	observability.WithContextLogger(s.logger, ctx).Info("task reminder sent",
		zap.String("taskId", task.ID),
		zap.Int("channels", len(unique)),
		zap.Int("sent", result.Sent()),
	)
	return result, nil
}

func uniqueChannels(channels []domain.Channel) ([]domain.Channel, error) {
	if len(channels) == 0 {
		return nil, domain.NewValidationError("channels", "must list at least one channel")
	}

	seen := make(map[domain.Channel]bool, len(channels))
	unique := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if !ch.IsValid() {
			return nil, domain.NewValidationError("channels", fmt.Sprintf("unknown channel %q", ch))
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		unique = append(unique, ch)
	}
	return unique, nil
}
