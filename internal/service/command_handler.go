package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/queue"
	"go.uber.org/zap"
)

// TickTrigger runs a dispatch tick unless one is already running.
type TickTrigger interface {
	Tick(ctx context.Context) (TickResult, bool, error)
}

// CommandHandler applies commands consumed from the broker.
type CommandHandler struct {
	reminders *ReminderService
	ticks     TickTrigger
	logger    *zap.Logger
}

func NewCommandHandler(reminders *ReminderService, ticks TickTrigger, logger *zap.Logger) (*CommandHandler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder service is required")
	}
	if ticks == nil {
		return nil, fmt.Errorf("tick trigger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CommandHandler{reminders: reminders, ticks: ticks, logger: logger}, nil
}

// Handle is a queue.CommandHandler. Returned validation and not-found errors
// dead-letter the command; any other error requeues it.
func (h *CommandHandler) Handle(ctx context.Context, cmd queue.CommandMessage) error {
	logger := observability.WithContextLogger(h.logger, ctx).With(zap.String("type", string(cmd.Type)))

	switch cmd.Type {
	case queue.CommandDispatchTick:
		result, ran, err := h.ticks.Tick(ctx)
		if err != nil {
			return err
		}
		logger.Info("on-demand dispatch tick handled", zap.Bool("ran", ran), zap.Int("scanned", result.Scanned))
		return nil

	case queue.CommandDispatchReminder:
		result, err := h.reminders.DispatchByID(ctx, cmd.ReminderID)
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			logger.Info("reminder already processed", zap.String("reminderId", cmd.ReminderID))
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("reminder dispatched on command",
			zap.String("reminderId", cmd.ReminderID),
			zap.String("outcome", string(result.Outcome)),
		)
		return nil

	case queue.CommandTaskDeleted:
		_, err := h.reminders.DeleteByTask(ctx, cmd.TaskID)
		return err

	case queue.CommandReminderParsed:
		parsed := cmd.Reminder
		if parsed == nil {
			return domain.NewValidationError("reminder", "is required")
		}
		metadata := domain.Metadata{}
		for k, v := range parsed.Metadata {
			metadata[k] = v
		}
		metadata[domain.MetadataSource] = domain.MetadataSourceAIParsing

		reminder, err := h.reminders.Create(ctx, CreateReminderInput{
			UserID:      cmd.UserID,
			TaskID:      parsed.TaskID,
			ScheduledAt: parsed.ReminderTime,
			Channel:     parsed.ReminderType,
			Title:       parsed.Title,
			Message:     parsed.Message,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}
		logger.Info("parsed reminder created", zap.String("reminderId", reminder.ID))
		return nil
	}

	return fmt.Errorf("%w: unsupported command type %q", domain.ErrValidation, cmd.Type)
}
