package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/provider"
	"github.com/remindly/reminder-engine/internal/queue"
	"github.com/remindly/reminder-engine/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testDBSeq atomic.Int64
	baseTime  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:service_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&repository.ReminderModel{},
		&repository.DeliveryAttemptModel{},
		&repository.UserModel{},
		&repository.TaskModel{},
	)
	if err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	phone := "+972501234567"
	description := "Two liters"
	seed := []any{
		&repository.UserModel{
			ID:          "user-1",
			Name:        "Dana",
			Email:       "dana@example.com",
			PhoneNumber: &phone,
			Language:    "en",
			Settings:    `{"fcmToken":"device-token-1"}`,
		},
		&repository.UserModel{ID: "user-2", Name: "Noa", Language: "he"},
		&repository.TaskModel{ID: "task-1", UserID: "user-1", Title: "Buy milk", Description: &description},
		&repository.TaskModel{ID: "task-2", UserID: "user-2", Title: "Water plants"},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T error = %v", row, err)
		}
	}
	return db
}

func newReminder(userID string, at time.Time, channel domain.Channel) *domain.Reminder {
	taskID := "task-1"
	if userID == "user-2" {
		taskID = "task-2"
	}
	return &domain.Reminder{
		UserID:         userID,
		TaskID:         taskID,
		ScheduledAt:    at,
		Channel:        channel,
		Title:          "Buy milk",
		Message:        "On the way home",
		DeliveryStatus: domain.DeliveryPending,
		MaxRetries:     domain.DefaultMaxRetries,
		IsActive:       true,
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type sentMessage struct {
	address string
	msg     provider.Message
}

type fakeSender struct {
	channel domain.Channel
	sendFn  func(ctx context.Context, address string, msg provider.Message) (*provider.Receipt, error)

	mu   sync.Mutex
	sent []sentMessage
}

func newFakeSender(channel domain.Channel) *fakeSender {
	return &fakeSender{channel: channel}
}

func (f *fakeSender) Channel() domain.Channel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, address string, msg provider.Message) (*provider.Receipt, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{address: address, msg: msg})
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, address, msg)
	}
	return &provider.Receipt{ID: string(f.channel) + "-receipt", Channel: f.channel, StatusCode: 200}, nil
}

func (f *fakeSender) calls() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeContacts struct {
	getContactFn func(ctx context.Context, userID string) (*domain.Contact, error)
}

func (f *fakeContacts) GetContact(ctx context.Context, userID string) (*domain.Contact, error) {
	if f.getContactFn != nil {
		return f.getContactFn(ctx, userID)
	}
	return &domain.Contact{UserID: userID, PhoneNumber: "+972501234567", Email: "dana@example.com", PushToken: "tok"}, nil
}

type fakeTasks struct {
	getTaskFn func(ctx context.Context, userID string, taskID string) (*domain.TaskRef, error)
}

func (f *fakeTasks) GetTask(ctx context.Context, userID string, taskID string) (*domain.TaskRef, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, userID, taskID)
	}
	return &domain.TaskRef{ID: taskID, UserID: userID, Title: "Task"}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []queue.DeliveryEvent
	err    error
}

func (f *fakeEventPublisher) PublishEvent(ctx context.Context, event queue.DeliveryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeEventPublisher) published() []queue.DeliveryEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.DeliveryEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeReminderRepo embeds a real store and lets tests override single calls.
type fakeReminderRepo struct {
	repository.ReminderRepository

	findDueFn       func(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error)
	claimFn         func(ctx context.Context, id string, now time.Time, leaseUntil time.Time, manual bool) (*domain.Reminder, error)
	releaseClaimFn  func(ctx context.Context, id string) error
	recordOutcomeFn func(ctx context.Context, id string, outcome domain.Outcome) error
}

func (f *fakeReminderRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	if f.findDueFn != nil {
		return f.findDueFn(ctx, now, limit)
	}
	return f.ReminderRepository.FindDue(ctx, now, limit)
}

func (f *fakeReminderRepo) Claim(ctx context.Context, id string, now time.Time, leaseUntil time.Time, manual bool) (*domain.Reminder, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id, now, leaseUntil, manual)
	}
	return f.ReminderRepository.Claim(ctx, id, now, leaseUntil, manual)
}

func (f *fakeReminderRepo) ReleaseClaim(ctx context.Context, id string) error {
	if f.releaseClaimFn != nil {
		return f.releaseClaimFn(ctx, id)
	}
	return f.ReminderRepository.ReleaseClaim(ctx, id)
}

func (f *fakeReminderRepo) RecordOutcome(ctx context.Context, id string, outcome domain.Outcome) error {
	if f.recordOutcomeFn != nil {
		return f.recordOutcomeFn(ctx, id, outcome)
	}
	return f.ReminderRepository.RecordOutcome(ctx, id, outcome)
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (*DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (*DispatchResult, error) {
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, reminder, source)
	}
	return &DispatchResult{Outcome: OutcomeSent, Reminder: reminder}, nil
}

type fakeTickRunner struct {
	runTickFn func(ctx context.Context) (TickResult, error)
	calls     atomic.Int32
}

func (f *fakeTickRunner) RunTick(ctx context.Context) (TickResult, error) {
	f.calls.Add(1)
	if f.runTickFn != nil {
		return f.runTickFn(ctx)
	}
	return TickResult{}, nil
}
