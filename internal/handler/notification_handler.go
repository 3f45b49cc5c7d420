package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/service"
)

type NotificationService interface {
	SendTaskReminder(ctx context.Context, userID string, taskID string, channels []domain.Channel) (*service.TaskReminderResult, error)
}

type NotificationHandler struct {
	service  NotificationService
	validate *validator.Validate
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service, validate: newValidator()}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	notifications := router.Group("/v1/notifications", requireUser)
	notifications.Post("/task-reminder/:taskId", h.SendTaskReminder)

	return nil
}

type taskReminderRequest struct {
	Channels []string `json:"channels" validate:"required,min=1,dive,oneof=push sms email call"`
}

type channelDeliveryResponse struct {
	Channel     string `json:"channel"`
	Status      string `json:"status"`
	ReceiptID   string `json:"receiptId,omitempty"`
	FailureKind string `json:"failureKind,omitempty"`
	Error       string `json:"error,omitempty"`
}

type taskReminderResponse struct {
	TaskID  string                    `json:"taskId"`
	Sent    int                       `json:"sent"`
	Results []channelDeliveryResponse `json:"results"`
}

func (h *NotificationHandler) SendTaskReminder(c *fiber.Ctx) error {
	taskID := strings.TrimSpace(c.Params("taskId"))
	if _, err := uuid.Parse(taskID); err != nil {
		return domain.NewValidationError("taskId", "must be a UUID")
	}

	var req taskReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toValidationError(err)
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, domain.Channel(ch))
	}

	result, err := h.service.SendTaskReminder(requestContext(c), currentUser(c), taskID, channels)
	if err != nil {
		return err
	}

	resp := taskReminderResponse{
		TaskID:  result.TaskID,
		Sent:    result.Sent(),
		Results: make([]channelDeliveryResponse, 0, len(result.Deliveries)),
	}
	for _, d := range result.Deliveries {
		resp.Results = append(resp.Results, channelDeliveryResponse{
			Channel:     d.Channel.String(),
			Status:      string(d.Status),
			ReceiptID:   d.ReceiptID,
			FailureKind: string(d.FailureKind),
			Error:       d.Error,
		})
	}
	return c.JSON(resp)
}
