package service

import (
	"context"
	"errors"
	"testing"

	"github.com/remindly/reminder-engine/internal/directory"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/provider"
	"github.com/remindly/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

var milkTask = domain.TaskRef{ID: "task-1", UserID: "user-1", Title: "Buy milk", Description: "Two liters"}

func TestNotifyTaskSendsEveryChannelWithoutStoring(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	channels := []domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelPush}

	deliveries, err := f.dispatcher.NotifyTask(context.Background(), "user-1", milkTask, channels)
	if err != nil {
		t.Fatalf("NotifyTask() error = %v", err)
	}
	if len(deliveries) != len(channels) {
		t.Fatalf("deliveries = %d, want %d", len(deliveries), len(channels))
	}
	for i, d := range deliveries {
		if d.Channel != channels[i] {
			t.Fatalf("deliveries[%d].Channel = %s, want %s", i, d.Channel, channels[i])
		}
		if d.Status != ChannelSendSent || d.ReceiptID != string(channels[i])+"-receipt" {
			t.Fatalf("deliveries[%d] = %+v, want sent with receipt", i, d)
		}
	}

	sms := f.senders[domain.ChannelSMS].calls()
	if len(sms) != 1 || sms[0].address != "+972501234567" {
		t.Fatalf("sms calls = %+v, want one call to the user's phone", sms)
	}
	if sms[0].msg.Title != "Buy milk" || sms[0].msg.Body != "Two liters" {
		t.Fatalf("sms message = %+v, want task title and description", sms[0].msg)
	}
	if got := f.senders[domain.ChannelEmail].calls(); len(got) != 1 || got[0].msg.HTML == "" {
		t.Fatalf("email calls = %+v, want one call with an HTML body", got)
	}
	if got := f.senders[domain.ChannelCall].calls(); len(got) != 0 {
		t.Fatalf("call calls = %d, want 0", len(got))
	}

	reminders, total, err := f.repo.List(context.Background(), repository.ListParams{UserID: "user-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 0 || len(reminders) != 0 {
		t.Fatalf("stored reminders = %d, want 0", total)
	}
	if events := f.events.published(); len(events) != 0 {
		t.Fatalf("published events = %d, want 0", len(events))
	}
}

func TestNotifyTaskReportsPerChannelFailures(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	f.senders[domain.ChannelCall].sendFn = func(ctx context.Context, address string, msg provider.Message) (*provider.Receipt, error) {
		return nil, &provider.ChannelError{Kind: provider.KindProvider, Channel: domain.ChannelCall, StatusCode: 503}
	}
	f.dispatcher.rateLimiter = &fakeRateLimiter{
		waitFn: func(ctx context.Context, channel domain.Channel) error {
			if channel == domain.ChannelEmail {
				return domain.ErrThrottled
			}
			return nil
		},
	}

	deliveries, err := f.dispatcher.NotifyTask(context.Background(), "user-1", milkTask,
		[]domain.Channel{domain.ChannelSMS, domain.ChannelCall, domain.ChannelEmail})
	if err != nil {
		t.Fatalf("NotifyTask() error = %v", err)
	}

	want := []struct {
		status ChannelSendStatus
		kind   domain.FailureKind
	}{
		{status: ChannelSendSent},
		{status: ChannelSendFailed, kind: domain.FailureTransient},
		{status: ChannelSendThrottled},
	}
	for i, w := range want {
		got := deliveries[i]
		if got.Status != w.status || got.FailureKind != w.kind {
			t.Fatalf("deliveries[%d] = %+v, want status %s kind %q", i, got, w.status, w.kind)
		}
		if w.status != ChannelSendSent && got.Error == "" {
			t.Fatalf("deliveries[%d].Error is empty", i)
		}
	}
}

func TestNotifyTaskUnknownUserIsMissingAddress(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	deliveries, err := f.dispatcher.NotifyTask(context.Background(), "ghost", domain.TaskRef{ID: "task-9", Title: "Ghost"},
		[]domain.Channel{domain.ChannelPush, domain.ChannelSMS})
	if err != nil {
		t.Fatalf("NotifyTask() error = %v", err)
	}
	for _, d := range deliveries {
		if d.Status != ChannelSendFailed || d.FailureKind != domain.FailurePermanent {
			t.Fatalf("delivery = %+v, want permanent failure", d)
		}
	}
	for _, ch := range []domain.Channel{domain.ChannelPush, domain.ChannelSMS} {
		if calls := f.senders[ch].calls(); len(calls) != 0 {
			t.Fatalf("%s calls = %d, want 0", ch, len(calls))
		}
	}
}

func TestNotifyTaskContactOutage(t *testing.T) {
	t.Parallel()

	f := newDispatchFixture(t)
	f.dispatcher.contacts = &fakeContacts{
		getContactFn: func(ctx context.Context, userID string) (*domain.Contact, error) {
			return nil, errors.New("directory unavailable")
		},
	}

	if _, err := f.dispatcher.NotifyTask(context.Background(), "user-1", milkTask, []domain.Channel{domain.ChannelSMS}); err == nil {
		t.Fatal("NotifyTask() error = nil, want contact lookup error")
	}
	if calls := f.senders[domain.ChannelSMS].calls(); len(calls) != 0 {
		t.Fatalf("sms calls = %d, want 0", len(calls))
	}
}

type fakeTaskNotifier struct {
	notifyFn func(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error)
}

func (f *fakeTaskNotifier) NotifyTask(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error) {
	return f.notifyFn(ctx, userID, task, channels)
}

func TestNotificationServiceSendTaskReminder(t *testing.T) {
	t.Parallel()

	var gotTask domain.TaskRef
	var gotChannels []domain.Channel
	notifier := &fakeTaskNotifier{
		notifyFn: func(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error) {
			gotTask = task
			gotChannels = channels
			out := make([]ChannelDelivery, 0, len(channels))
			for _, ch := range channels {
				out = append(out, ChannelDelivery{Channel: ch, Status: ChannelSendSent})
			}
			out[len(out)-1].Status = ChannelSendFailed
			return out, nil
		},
	}
	svc, err := NewNotificationService(directory.NewGormTasks(newTestDB(t)), notifier, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	result, err := svc.SendTaskReminder(context.Background(), "user-1", "task-1",
		[]domain.Channel{domain.ChannelSMS, domain.ChannelPush, domain.ChannelSMS})
	if err != nil {
		t.Fatalf("SendTaskReminder() error = %v", err)
	}
	if gotTask.Title != "Buy milk" || gotTask.Description != "Two liters" {
		t.Fatalf("task = %+v, want task-1", gotTask)
	}
	if len(gotChannels) != 2 || gotChannels[0] != domain.ChannelSMS || gotChannels[1] != domain.ChannelPush {
		t.Fatalf("channels = %v, want [sms push]", gotChannels)
	}
	if result.TaskID != "task-1" || result.Sent() != 1 {
		t.Fatalf("result = %+v, want task-1 with 1 sent", result)
	}
}

func TestNotificationServiceSendTaskReminderErrors(t *testing.T) {
	t.Parallel()

	called := false
	notifier := &fakeTaskNotifier{
		notifyFn: func(ctx context.Context, userID string, task domain.TaskRef, channels []domain.Channel) ([]ChannelDelivery, error) {
			called = true
			return nil, nil
		},
	}
	svc, err := NewNotificationService(directory.NewGormTasks(newTestDB(t)), notifier, nil)
	if err != nil {
		t.Fatalf("NewNotificationService() error = %v", err)
	}

	tests := []struct {
		name     string
		userID   string
		taskID   string
		channels []domain.Channel
		want     error
	}{
		{name: "no channels", userID: "user-1", taskID: "task-1", want: domain.ErrValidation},
		{name: "unknown channel", userID: "user-1", taskID: "task-1", channels: []domain.Channel{"fax"}, want: domain.ErrValidation},
		{name: "blank task", userID: "user-1", taskID: " ", channels: []domain.Channel{domain.ChannelSMS}, want: domain.ErrValidation},
		{name: "other user's task", userID: "user-1", taskID: "task-2", channels: []domain.Channel{domain.ChannelSMS}, want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := svc.SendTaskReminder(context.Background(), tt.userID, tt.taskID, tt.channels); !errors.Is(err, tt.want) {
			t.Fatalf("%s: SendTaskReminder() error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if called {
		t.Fatal("notifier called for a rejected request")
	}

	if _, err := NewNotificationService(nil, notifier, nil); err == nil {
		t.Fatal("NewNotificationService(nil tasks) error = nil")
	}
	if _, err := NewNotificationService(directory.NewGormTasks(newTestDB(t)), nil, nil); err == nil {
		t.Fatal("NewNotificationService(nil notifier) error = nil")
	}
}
