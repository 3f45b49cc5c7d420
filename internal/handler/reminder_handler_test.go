package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/repository"
	"github.com/remindly/reminder-engine/internal/service"
	"github.com/remindly/reminder-engine/internal/transport"
	"go.uber.org/zap"
)

const (
	testUserID     = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testReminderID = "3f2b1c4e-8a7d-4e5f-9b6a-1c2d3e4f5a6b"
	testTaskID     = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
)

type errorBody struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields"`
}

func sampleReminder() *domain.Reminder {
	return &domain.Reminder{
		ID:             testReminderID,
		UserID:         testUserID,
		TaskID:         testTaskID,
		ScheduledAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Channel:        domain.ChannelSMS,
		Title:          "Buy milk",
		Message:        "Two liters",
		DeliveryStatus: domain.DeliveryPending,
		MaxRetries:     3,
		IsActive:       true,
	}
}

func TestReminderHandler_RequiresUserHeader(t *testing.T) {
	t.Parallel()

	app := newReminderTestApp(t, &stubReminderService{})

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/reminders", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without user header", resp.StatusCode)
	}

	resp, _ = performRequestAs(t, app, "not-a-uuid", http.MethodGet, "/v1/reminders", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for malformed user id", resp.StatusCode)
	}
}

func TestReminderHandler_CreateReminder(t *testing.T) {
	t.Parallel()

	var got service.CreateReminderInput
	svc := &stubReminderService{
		createFn: func(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error) {
			got = in
			r := sampleReminder()
			r.ScheduledAt = in.ScheduledAt
			r.Channel = in.Channel
			return r, nil
		},
	}
	app := newReminderTestApp(t, svc)

	body := fmt.Sprintf(`{"taskId":%q,"reminderTime":"2026-03-01T12:00:00+02:00","reminderType":"email","title":"Buy milk","message":"Two liters","maxRetries":5}`, testTaskID)
	resp, raw := performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(raw))
	}

	if got.UserID != testUserID || got.TaskID != testTaskID {
		t.Fatalf("input ids = %q/%q, want %q/%q", got.UserID, got.TaskID, testUserID, testTaskID)
	}
	if !got.ScheduledAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("ScheduledAt = %v, want 2026-03-01T10:00:00Z", got.ScheduledAt)
	}
	if got.Channel != domain.ChannelEmail {
		t.Fatalf("Channel = %q, want email", got.Channel)
	}
	if got.MaxRetries == nil || *got.MaxRetries != 5 {
		t.Fatalf("MaxRetries = %v, want 5", got.MaxRetries)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != testReminderID || parsed["reminderType"] != "email" || parsed["deliveryStatus"] != "pending" {
		t.Fatalf("response = %v", parsed)
	}
}

func TestReminderHandler_CreateReminderValidation(t *testing.T) {
	t.Parallel()

	called := false
	svc := &stubReminderService{
		createFn: func(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error) {
			called = true
			return sampleReminder(), nil
		},
	}
	app := newReminderTestApp(t, svc)

	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{
			name:       "bad time and type",
			body:       fmt.Sprintf(`{"taskId":%q,"reminderTime":"tomorrow","reminderType":"pigeon"}`, testTaskID),
			wantFields: []string{"reminderTime", "reminderType"},
		},
		{
			name:       "missing task",
			body:       `{"reminderTime":"2026-03-01T10:00:00Z","reminderType":"sms"}`,
			wantFields: []string{"taskId"},
		},
		{
			name:       "title too long",
			body:       fmt.Sprintf(`{"taskId":%q,"reminderTime":"2026-03-01T10:00:00Z","reminderType":"sms","title":%q}`, testTaskID, strings.Repeat("a", 256)),
			wantFields: []string{"title"},
		},
		{
			name:       "negative retries",
			body:       fmt.Sprintf(`{"taskId":%q,"reminderTime":"2026-03-01T10:00:00Z","reminderType":"sms","maxRetries":-1}`, testTaskID),
			wantFields: []string{"maxRetries"},
		},
	}

	for _, tt := range tests {
		resp, raw := performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders", tt.body)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400, body=%s", tt.name, resp.StatusCode, string(raw))
		}

		var parsed errorBody
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("%s: json unmarshal error = %v", tt.name, err)
		}
		if len(parsed.Fields) != len(tt.wantFields) {
			t.Fatalf("%s: fields = %+v, want %v", tt.name, parsed.Fields, tt.wantFields)
		}
		for i, field := range tt.wantFields {
			if parsed.Fields[i].Field != field {
				t.Fatalf("%s: fields[%d] = %q, want %q", tt.name, i, parsed.Fields[i].Field, field)
			}
		}
	}

	resp, _ := performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders", `{"taskId":`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed json", resp.StatusCode)
	}
	if called {
		t.Fatal("service.Create should not be called for invalid requests")
	}
}

func TestReminderHandler_CreateReminderUnknownTask(t *testing.T) {
	t.Parallel()

	svc := &stubReminderService{
		createFn: func(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, in.TaskID)
		},
	}
	app := newReminderTestApp(t, svc)

	body := fmt.Sprintf(`{"taskId":%q,"reminderTime":"2026-03-01T10:00:00Z","reminderType":"sms"}`, testTaskID)
	resp, _ := performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders", body)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReminderHandler_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	var correlationID string
	svc := &stubReminderService{
		getFn: func(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
			correlationID, _ = observability.CorrelationIDFromContext(ctx)
			return sampleReminder(), nil
		},
	}
	app := newReminderTestApp(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/reminders/"+testReminderID, nil)
	req.Header.Set(userIDHeader, testUserID)
	req.Header.Set(fiber.HeaderXRequestID, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if correlationID != "req-42" {
		t.Fatalf("correlation id = %q, want req-42", correlationID)
	}
}

func TestReminderHandler_GetReminder(t *testing.T) {
	t.Parallel()

	svc := &stubReminderService{
		getFn: func(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
			if userID == testUserID && id == testReminderID {
				return sampleReminder(), nil
			}
			return nil, domain.ErrNotFound
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/"+testReminderID, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["reminderTime"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("reminderTime = %v, want 2026-03-01T10:00:00Z", parsed["reminderTime"])
	}

	otherUser := "9b2d6f4e-1c3a-4b5d-8e7f-0a1b2c3d4e5f"
	resp, _ = performRequestAs(t, app, otherUser, http.MethodGet, "/v1/reminders/"+testReminderID, "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for another user's reminder", resp.StatusCode)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/not-a-uuid", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed id", resp.StatusCode)
	}
}

func TestReminderHandler_ListRemindersFilters(t *testing.T) {
	t.Parallel()

	var got repository.ListParams
	svc := &stubReminderService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
			got = params
			return []domain.Reminder{*sampleReminder()}, 11, nil
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders?type=sms&sent=false&upcoming=true&page=2&pageSize=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}

	if got.UserID != testUserID || got.Page != 2 || got.PageSize != 10 || !got.Upcoming {
		t.Fatalf("params = %+v", got)
	}
	if got.Channel == nil || *got.Channel != domain.ChannelSMS {
		t.Fatalf("Channel = %v, want sms", got.Channel)
	}
	if got.Sent == nil || *got.Sent {
		t.Fatalf("Sent = %v, want false", got.Sent)
	}

	var parsed listRemindersResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Meta.Total != 11 || parsed.Meta.Page != 2 || len(parsed.Data) != 1 {
		t.Fatalf("list response = %+v", parsed)
	}

	for _, path := range []string{
		"/v1/reminders?type=pigeon",
		"/v1/reminders?sent=maybe",
		"/v1/reminders?pageSize=500",
		"/v1/reminders?page=0",
	} {
		resp, _ := performRequestAs(t, app, testUserID, http.MethodGet, path, "")
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestReminderHandler_UpdateReminder(t *testing.T) {
	t.Parallel()

	var got service.UpdateReminderInput
	svc := &stubReminderService{
		updateFn: func(ctx context.Context, userID string, id string, in service.UpdateReminderInput) (*domain.Reminder, error) {
			got = in
			r := sampleReminder()
			if in.Title != nil {
				r.Title = *in.Title
			}
			return r, nil
		},
	}
	app := newReminderTestApp(t, svc)

	body := `{"title":"Buy oat milk","reminderTime":"2026-03-02T08:00:00Z","isActive":false}`
	resp, raw := performRequestAs(t, app, testUserID, http.MethodPut, "/v1/reminders/"+testReminderID, body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}
	if got.Title == nil || *got.Title != "Buy oat milk" {
		t.Fatalf("Title = %v, want Buy oat milk", got.Title)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("ScheduledAt = %v", got.ScheduledAt)
	}
	if got.IsActive == nil || *got.IsActive {
		t.Fatalf("IsActive = %v, want false", got.IsActive)
	}
	if got.Channel != nil || got.Message != nil || got.MaxRetries != nil {
		t.Fatalf("untouched fields should stay nil: %+v", got)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodPut, "/v1/reminders/"+testReminderID, `{"reminderType":"fax"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid type", resp.StatusCode)
	}
}

func TestReminderHandler_UpdateSentReminder(t *testing.T) {
	t.Parallel()

	svc := &stubReminderService{
		updateFn: func(ctx context.Context, userID string, id string, in service.UpdateReminderInput) (*domain.Reminder, error) {
			return nil, domain.ErrAlreadySent
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodPut, "/v1/reminders/"+testReminderID, `{"title":"late edit"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(raw))
	}
}

func TestReminderHandler_DeleteReminder(t *testing.T) {
	t.Parallel()

	deleted := map[string]bool{}
	svc := &stubReminderService{
		deleteFn: func(ctx context.Context, userID string, id string) error {
			if deleted[id] {
				return domain.ErrNotFound
			}
			deleted[id] = true
			return nil
		},
	}
	app := newReminderTestApp(t, svc)

	resp, _ := performRequestAs(t, app, testUserID, http.MethodDelete, "/v1/reminders/"+testReminderID, "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	resp, _ = performRequestAs(t, app, testUserID, http.MethodDelete, "/v1/reminders/"+testReminderID, "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 on second delete", resp.StatusCode)
	}
}

func TestReminderHandler_SendReminder(t *testing.T) {
	t.Parallel()

	next := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	svc := &stubReminderService{
		sendNowFn: func(ctx context.Context, userID string, id string) (*service.DispatchResult, error) {
			switch id {
			case testReminderID:
				r := sampleReminder()
				r.RetryCount = 1
				return &service.DispatchResult{
					Outcome:       service.OutcomeRetryScheduled,
					Reminder:      r,
					Error:         "sms provider unavailable",
					NextAttemptAt: &next,
				}, nil
			case "11111111-2222-4333-8444-555555555555":
				return nil, domain.ErrAlreadySent
			default:
				return nil, domain.ErrAlreadyProcessed
			}
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders/"+testReminderID+"/send", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		ID         string           `json:"id"`
		RetryCount int              `json:"retryCount"`
		Dispatch   dispatchResponse `json:"dispatch"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.ID != testReminderID || parsed.RetryCount != 1 {
		t.Fatalf("reminder fields = %+v", parsed)
	}
	if parsed.Dispatch.Outcome != string(service.OutcomeRetryScheduled) || parsed.Dispatch.Error == "" {
		t.Fatalf("dispatch = %+v", parsed.Dispatch)
	}
	if parsed.Dispatch.NextAttemptAt == nil || !parsed.Dispatch.NextAttemptAt.Equal(next) {
		t.Fatalf("nextAttemptAt = %v, want %v", parsed.Dispatch.NextAttemptAt, next)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders/11111111-2222-4333-8444-555555555555/send", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for already sent", resp.StatusCode)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodPost, "/v1/reminders/99999999-8888-4777-8666-555555555555/send", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for in-flight dispatch", resp.StatusCode)
	}
}

func TestReminderHandler_ListAttempts(t *testing.T) {
	t.Parallel()

	kind := domain.FailureTransient
	msg := "timeout"
	receipt := "SM123"
	svc := &stubReminderService{
		attemptsFn: func(ctx context.Context, userID string, id string) ([]domain.DeliveryAttempt, error) {
			return []domain.DeliveryAttempt{
				{ID: "a-1", ReminderID: id, Channel: domain.ChannelSMS, AttemptNumber: 1, Outcome: domain.AttemptFailure, FailureKind: &kind, Error: &msg},
				{ID: "a-2", ReminderID: id, Channel: domain.ChannelSMS, AttemptNumber: 2, Outcome: domain.AttemptSuccess, ReceiptID: &receipt},
			}, nil
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/"+testReminderID+"/attempts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []attemptResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 2 {
		t.Fatalf("attempts = %d, want 2", len(parsed.Data))
	}
	if parsed.Data[0].FailureKind != "transient" || parsed.Data[0].Error != "timeout" {
		t.Fatalf("first attempt = %+v", parsed.Data[0])
	}
	if parsed.Data[1].ReceiptID != "SM123" || parsed.Data[1].Outcome != "success" {
		t.Fatalf("second attempt = %+v", parsed.Data[1])
	}
}

func TestReminderHandler_Stats(t *testing.T) {
	t.Parallel()

	var gotFrom, gotTo *time.Time
	routedToGet := false
	svc := &stubReminderService{
		statsFn: func(ctx context.Context, userID string, from *time.Time, to *time.Time) (*service.ChannelStats, error) {
			gotFrom, gotTo = from, to
			if from != nil && to != nil && from.After(*to) {
				return nil, domain.NewValidationError("startDate", "must not be after endDate")
			}
			return &service.ChannelStats{
				Window: domain.StatsWindow{From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
				Counts: []domain.ChannelCount{
					{Channel: domain.ChannelPush, Count: 0},
					{Channel: domain.ChannelSMS, Count: 4},
					{Channel: domain.ChannelEmail, Count: 1},
					{Channel: domain.ChannelCall, Count: 0},
				},
				Total: 5,
			}, nil
		},
		getFn: func(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
			routedToGet = true
			return sampleReminder(), nil
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/stats/overview?startDate=2026-01-01T00:00:00Z&endDate=2026-01-31T00:00:00Z", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(raw))
	}
	if routedToGet {
		t.Fatal("stats request was routed to GetReminder")
	}
	if gotFrom == nil || gotTo == nil {
		t.Fatalf("window = %v/%v, want both bounds", gotFrom, gotTo)
	}

	var parsed statsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Total != 5 || parsed.ByType["sms"] != 4 || len(parsed.ByType) != 4 {
		t.Fatalf("stats = %+v", parsed)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/stats/overview", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 with default window", resp.StatusCode)
	}
	if gotFrom != nil || gotTo != nil {
		t.Fatalf("window = %v/%v, want nil bounds", gotFrom, gotTo)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/stats/overview?startDate=yesterday", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed startDate", resp.StatusCode)
	}

	resp, _ = performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders/stats/overview?startDate=2026-02-01T00:00:00Z&endDate=2026-01-01T00:00:00Z", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for inverted window", resp.StatusCode)
	}
}

func TestReminderHandler_InternalErrorsAreHidden(t *testing.T) {
	t.Parallel()

	svc := &stubReminderService{
		listFn: func(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
			return nil, 0, errors.New("pq: relation reminders does not exist")
		},
	}
	app := newReminderTestApp(t, svc)

	resp, raw := performRequestAs(t, app, testUserID, http.MethodGet, "/v1/reminders", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if strings.Contains(string(raw), "pq:") {
		t.Fatalf("body leaks internal error: %s", string(raw))
	}
}

func TestNewReminderHandlerRequiresService(t *testing.T) {
	t.Parallel()

	if _, err := NewReminderHandler(nil); err == nil {
		t.Fatal("NewReminderHandler(nil) error = nil, want error")
	}
}

type stubReminderService struct {
	createFn   func(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error)
	getFn      func(ctx context.Context, userID string, id string) (*domain.Reminder, error)
	listFn     func(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error)
	updateFn   func(ctx context.Context, userID string, id string, in service.UpdateReminderInput) (*domain.Reminder, error)
	deleteFn   func(ctx context.Context, userID string, id string) error
	sendNowFn  func(ctx context.Context, userID string, id string) (*service.DispatchResult, error)
	attemptsFn func(ctx context.Context, userID string, id string) ([]domain.DeliveryAttempt, error)
	statsFn    func(ctx context.Context, userID string, from *time.Time, to *time.Time) (*service.ChannelStats, error)
}

func (s *stubReminderService) Create(ctx context.Context, in service.CreateReminderInput) (*domain.Reminder, error) {
	if s.createFn != nil {
		return s.createFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReminderService) Get(ctx context.Context, userID string, id string) (*domain.Reminder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, id)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReminderService) List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, errors.New("not implemented")
}

func (s *stubReminderService) Update(ctx context.Context, userID string, id string, in service.UpdateReminderInput) (*domain.Reminder, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, userID, id, in)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReminderService) Delete(ctx context.Context, userID string, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, id)
	}
	return errors.New("not implemented")
}

func (s *stubReminderService) SendNow(ctx context.Context, userID string, id string) (*service.DispatchResult, error) {
	if s.sendNowFn != nil {
		return s.sendNowFn(ctx, userID, id)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReminderService) Attempts(ctx context.Context, userID string, id string) ([]domain.DeliveryAttempt, error) {
	if s.attemptsFn != nil {
		return s.attemptsFn(ctx, userID, id)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReminderService) Stats(ctx context.Context, userID string, from *time.Time, to *time.Time) (*service.ChannelStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, userID, from, to)
	}
	return nil, errors.New("not implemented")
}

func newReminderTestApp(t *testing.T, svc ReminderService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterReminderRoutes(app, svc); err != nil {
		t.Fatalf("RegisterReminderRoutes() error = %v", err)
	}

	return app
}
