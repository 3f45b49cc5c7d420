package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/repository"
	"github.com/remindly/reminder-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100

	userIDHeader = "X-User-ID"
	userIDLocal  = "userId"
)

type ReminderService interface {
	Create(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error)
	Get(ctx context.Context, userID string, id string) (*domain.Reminder, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error)
	Update(ctx context.Context, userID string, id string, in service.UpdateReminderInput) (*domain.Reminder, error)
	Delete(ctx context.Context, userID string, id string) error
	SendNow(ctx context.Context, userID string, id string) (*service.DispatchResult, error)
	Attempts(ctx context.Context, userID string, id string) ([]domain.DeliveryAttempt, error)
	Stats(ctx context.Context, userID string, from *time.Time, to *time.Time) (*service.ChannelStats, error)
}

type ReminderHandler struct {
	service  ReminderService
	validate *validator.Validate
}

func NewReminderHandler(service ReminderService) (*ReminderHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("reminder service is required")
	}
	return &ReminderHandler{service: service, validate: newValidator()}, nil
}

func RegisterReminderRoutes(router fiber.Router, service ReminderService) error {
	h, err := NewReminderHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1", requireUser)
	// stats must be registered ahead of /reminders/:id
	v1.Get("/reminders/stats/overview", h.GetStats)
	v1.Get("/reminders", h.ListReminders)
	v1.Post("/reminders", h.CreateReminder)
	v1.Get("/reminders/:id", h.GetReminder)
	v1.Put("/reminders/:id", h.UpdateReminder)
	v1.Delete("/reminders/:id", h.DeleteReminder)
	v1.Post("/reminders/:id/send", h.SendReminder)
	v1.Get("/reminders/:id/attempts", h.ListAttempts)

	return nil
}

type createReminderRequest struct {
	TaskID       string         `json:"taskId" validate:"required,uuid"`
	ReminderTime string         `json:"reminderTime" validate:"required,rfc3339"`
	ReminderType string         `json:"reminderType" validate:"required,oneof=push sms email call"`
	Title        string         `json:"title" validate:"max=255"`
	Message      string         `json:"message"`
	MaxRetries   *int           `json:"maxRetries" validate:"omitempty,gte=0,lte=10"`
	Metadata     map[string]any `json:"metadata"`
}

type updateReminderRequest struct {
	ReminderTime *string `json:"reminderTime" validate:"omitempty,rfc3339"`
	ReminderType *string `json:"reminderType" validate:"omitempty,oneof=push sms email call"`
	Title        *string `json:"title" validate:"omitempty,max=255"`
	Message      *string `json:"message"`
	IsActive     *bool   `json:"isActive"`
	MaxRetries   *int    `json:"maxRetries" validate:"omitempty,gte=0,lte=10"`
}

type reminderResponse struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"userId"`
	TaskID          string                 `json:"taskId"`
	ReminderTime    time.Time              `json:"reminderTime"`
	ReminderType    string                 `json:"reminderType"`
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	Sent            bool                   `json:"sent"`
	SentAt          *time.Time             `json:"sentAt,omitempty"`
	DeliveryStatus  string                 `json:"deliveryStatus"`
	DeliveryDetails domain.DeliveryDetails `json:"deliveryDetails"`
	RetryCount      int                    `json:"retryCount"`
	MaxRetries      int                    `json:"maxRetries"`
	IsActive        bool                   `json:"isActive"`
	Metadata        domain.Metadata        `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"createdAt,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt,omitempty"`
}

type dispatchResponse struct {
	Outcome       string     `json:"outcome"`
	ReceiptID     string     `json:"receiptId,omitempty"`
	Error         string     `json:"error,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
}

type sendReminderResponse struct {
	reminderResponse
	Dispatch dispatchResponse `json:"dispatch"`
}

type listRemindersResponse struct {
	Data []reminderResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type attemptResponse struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	Channel       string    `json:"channel"`
	Outcome       string    `json:"outcome"`
	FailureKind   string    `json:"failureKind,omitempty"`
	Error         string    `json:"error,omitempty"`
	ReceiptID     string    `json:"receiptId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type statsResponse struct {
	StartDate time.Time        `json:"startDate"`
	EndDate   time.Time        `json:"endDate"`
	Total     int64            `json:"total"`
	ByType    map[string]int64 `json:"byType"`
}

func (h *ReminderHandler) CreateReminder(c *fiber.Ctx) error {
	var req createReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toValidationError(err)
	}

	scheduledAt, _ := time.Parse(time.RFC3339, req.ReminderTime)
	created, err := h.service.Create(requestContext(c), service.CreateReminderInput{
		UserID:      currentUser(c),
		TaskID:      req.TaskID,
		ScheduledAt: scheduledAt,
		Channel:     domain.Channel(req.ReminderType),
		Title:       req.Title,
		Message:     req.Message,
		MaxRetries:  req.MaxRetries,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toReminderResponse(created))
}

func (h *ReminderHandler) GetReminder(c *fiber.Ctx) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	reminder, err := h.service.Get(requestContext(c), currentUser(c), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toReminderResponse(reminder))
}

func (h *ReminderHandler) ListReminders(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	reminders, total, err := h.service.List(requestContext(c), params)
	if err != nil {
		return err
	}

	data := make([]reminderResponse, 0, len(reminders))
	for i := range reminders {
		data = append(data, toReminderResponse(&reminders[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listRemindersResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *ReminderHandler) UpdateReminder(c *fiber.Ctx) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	var req updateReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toValidationError(err)
	}

	in := service.UpdateReminderInput{
		Title:      req.Title,
		Message:    req.Message,
		IsActive:   req.IsActive,
		MaxRetries: req.MaxRetries,
	}
	if req.ReminderTime != nil {
		scheduledAt, _ := time.Parse(time.RFC3339, *req.ReminderTime)
		in.ScheduledAt = &scheduledAt
	}
	if req.ReminderType != nil {
		channel := domain.Channel(*req.ReminderType)
		in.Channel = &channel
	}

	updated, err := h.service.Update(requestContext(c), currentUser(c), id, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toReminderResponse(updated))
}

func (h *ReminderHandler) DeleteReminder(c *fiber.Ctx) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(requestContext(c), currentUser(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendReminder dispatches immediately. A failed delivery is still a 200; the
// dispatch block carries the outcome.
func (h *ReminderHandler) SendReminder(c *fiber.Ctx) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	result, err := h.service.SendNow(requestContext(c), currentUser(c), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(sendReminderResponse{
		reminderResponse: toReminderResponse(result.Reminder),
		Dispatch: dispatchResponse{
			Outcome:       string(result.Outcome),
			ReceiptID:     result.ReceiptID,
			Error:         result.Error,
			NextAttemptAt: result.NextAttemptAt,
		},
	})
}

func (h *ReminderHandler) ListAttempts(c *fiber.Ctx) error {
	id, err := reminderID(c)
	if err != nil {
		return err
	}

	attempts, err := h.service.Attempts(requestContext(c), currentUser(c), id)
	if err != nil {
		return err
	}

	data := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		item := attemptResponse{
			ID:            a.ID,
			AttemptNumber: a.AttemptNumber,
			Channel:       a.Channel.String(),
			Outcome:       string(a.Outcome),
			CreatedAt:     a.CreatedAt,
		}
		if a.FailureKind != nil {
			item.FailureKind = string(*a.FailureKind)
		}
		if a.Error != nil {
			item.Error = *a.Error
		}
		if a.ReceiptID != nil {
			item.ReceiptID = *a.ReceiptID
		}
		data = append(data, item)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *ReminderHandler) GetStats(c *fiber.Ctx) error {
	from, err := parseRFC3339Query(c.Query("startDate"), "startDate")
	if err != nil {
		return err
	}
	to, err := parseRFC3339Query(c.Query("endDate"), "endDate")
	if err != nil {
		return err
	}

	stats, err := h.service.Stats(requestContext(c), currentUser(c), from, to)
	if err != nil {
		return err
	}

	byType := make(map[string]int64, len(stats.Counts))
	for _, count := range stats.Counts {
		byType[count.Channel.String()] = count.Count
	}

	return c.Status(fiber.StatusOK).JSON(statsResponse{
		StartDate: stats.Window.From,
		EndDate:   stats.Window.To,
		Total:     stats.Total,
		ByType:    byType,
	})
}

// requireUser rejects requests without a gateway-injected user id.
func requireUser(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Get(userIDHeader))
	if raw == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+userIDHeader+" header")
	}
	if _, err := uuid.Parse(raw); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, userIDHeader+" must be a UUID")
	}

	c.Locals(userIDLocal, raw)
	return c.Next()
}

func currentUser(c *fiber.Ctx) string {
	userID, _ := c.Locals(userIDLocal).(string)
	return userID
}

func reminderID(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		UserID:   currentUser(c),
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, domain.NewValidationError("page", "must be >= 1")
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, domain.NewValidationError("pageSize", fmt.Sprintf("must be between 1 and %d", maxPageSize))
	}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		channel, err := domain.ParseChannelFromString(rawType)
		if err != nil {
			return repository.ListParams{}, domain.NewValidationError("type", "must be one of push, sms, email, call")
		}
		params.Channel = &channel
	}

	if rawSent := strings.TrimSpace(c.Query("sent")); rawSent != "" {
		sent, err := strconv.ParseBool(rawSent)
		if err != nil {
			return repository.ListParams{}, domain.NewValidationError("sent", "must be a boolean")
		}
		params.Sent = &sent
	}

	if rawUpcoming := strings.TrimSpace(c.Query("upcoming")); rawUpcoming != "" {
		upcoming, err := strconv.ParseBool(rawUpcoming)
		if err != nil {
			return repository.ListParams{}, domain.NewValidationError("upcoming", "must be a boolean")
		}
		params.Upcoming = upcoming
	}

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, domain.NewValidationError(field, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

// requestContext carries the request id into the service call as the
// correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toReminderResponse(r *domain.Reminder) reminderResponse {
	if r == nil {
		return reminderResponse{}
	}

	return reminderResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		TaskID:          r.TaskID,
		ReminderTime:    r.ScheduledAt,
		ReminderType:    r.Channel.String(),
		Title:           r.Title,
		Message:         r.Message,
		Sent:            r.Sent,
		SentAt:          r.SentAt,
		DeliveryStatus:  r.DeliveryStatus.String(),
		DeliveryDetails: r.DeliveryDetails,
		RetryCount:      r.RetryCount,
		MaxRetries:      r.MaxRetries,
		IsActive:        r.IsActive,
		Metadata:        r.Metadata,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
