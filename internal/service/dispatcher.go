package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/remindly/reminder-engine/internal/directory"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/provider"
	"github.com/remindly/reminder-engine/internal/queue"
	"github.com/remindly/reminder-engine/internal/ratelimit"
	"github.com/remindly/reminder-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDispatchConcurrency = 4
	defaultDispatchBatchLimit  = 100
	defaultSendTimeout         = 30 * time.Second
	defaultClaimTTL            = 2 * time.Minute
	releaseTimeout             = 5 * time.Second
)

// DispatchSource tells how the reminder reached the dispatcher.
type DispatchSource string

const (
	SourceScheduled DispatchSource = "scheduled"
	SourceManual    DispatchSource = "manual"
	SourceCommand   DispatchSource = "command"
	SourceTask      DispatchSource = "task_reminder"
)

// DispatchOutcome is the result class of one dispatch.
type DispatchOutcome string

const (
	OutcomeSent           DispatchOutcome = "sent"
	OutcomeRetryScheduled DispatchOutcome = "retry_scheduled"
	OutcomeFailed         DispatchOutcome = "failed"
)

// DispatchResult describes a recorded dispatch.
type DispatchResult struct {
	Outcome       DispatchOutcome
	Reminder      *domain.Reminder
	ReceiptID     string
	Error         string
	NextAttemptAt *time.Time
}

// TickResult summarizes one batch scan.
type TickResult struct {
	Scanned   int
	Sent      int
	Retried   int
	Failed    int
	Skipped   int
	Throttled int
	Errors    int
}

// SenderResolver returns the sender for a channel.
type SenderResolver interface {
	SenderFor(channel domain.Channel) (provider.Sender, error)
}

type DispatcherOptions struct {
	Concurrency int
	BatchLimit  int
	SendTimeout time.Duration
	ClaimTTL    time.Duration
	Backoff     BackoffPolicy
}

// Dispatcher routes due reminders to channel senders and records outcomes.
type Dispatcher struct {
	reminders   repository.ReminderRepository
	contacts    directory.ContactDirectory
	tasks       directory.TaskDirectory
	senders     SenderResolver
	rateLimiter ratelimit.ChannelLimiter
	events      queue.EventPublisher
	backoff     BackoffPolicy
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	batchLimit  int
	sendTimeout time.Duration
	claimTTL    time.Duration
	now         func() time.Time
}

func NewDispatcher(
	reminders repository.ReminderRepository,
	contacts directory.ContactDirectory,
	tasks directory.TaskDirectory,
	senders SenderResolver,
	rateLimiter ratelimit.ChannelLimiter,
	events queue.EventPublisher,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if contacts == nil {
		return nil, fmt.Errorf("contact directory is required")
	}
	if senders == nil {
		return nil, fmt.Errorf("sender resolver is required")
	}
	if events == nil {
		events = queue.NopEventPublisher{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultDispatchConcurrency
	}
	if opts.BatchLimit < 1 {
		opts.BatchLimit = defaultDispatchBatchLimit
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = defaultClaimTTL
	}
	if opts.Backoff == (BackoffPolicy{}) {
		opts.Backoff = DefaultBackoffPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		reminders:   reminders,
		contacts:    contacts,
		tasks:       tasks,
		senders:     senders,
		rateLimiter: rateLimiter,
		events:      events,
		backoff:     opts.Backoff,
		logger:      logger,
		concurrency: opts.Concurrency,
		batchLimit:  opts.BatchLimit,
		sendTimeout: opts.SendTimeout,
		claimTTL:    opts.ClaimTTL,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// RunTick dispatches every due reminder with bounded parallelism. A failing
// reminder never aborts the batch; only the due-reminder scan can fail the tick.
func (d *Dispatcher) RunTick(ctx context.Context) (TickResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := d.now()
	due, err := d.reminders.FindDue(ctx, start.UTC(), d.batchLimit)
	if err != nil {
		d.metrics.ObserveDispatchTick("error", 0, d.now().Sub(start))
		return TickResult{}, fmt.Errorf("failed to fetch due reminders: %w", err)
	}

	result := TickResult{Scanned: len(due)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		reminder := due[i]

		g.Go(func() error {
			res, err := d.dispatchIsolated(ctx, &reminder, SourceScheduled)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrAlreadyProcessed):
				result.Skipped++
			case errors.Is(err, domain.ErrThrottled):
				result.Throttled++
			case err != nil:
				result.Errors++
			case res.Outcome == OutcomeSent:
				result.Sent++
			case res.Outcome == OutcomeRetryScheduled:
				result.Retried++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.ObserveDispatchTick("ok", len(due), d.now().Sub(start))
	d.logger.Info("dispatch tick completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("sent", result.Sent),
		zap.Int("retried", result.Retried),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("throttled", result.Throttled),
		zap.Int("errors", result.Errors),
	)

	return result, nil
}

// Dispatch sends one already-fetched reminder. Scheduled dispatches honor the
// due-time filter; manual and command dispatches bypass it and may revive a
// failed reminder. A reminder that was sent or claimed elsewhere yields
// ErrAlreadyProcessed and no channel call.
func (d *Dispatcher) Dispatch(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if reminder == nil {
		return nil, fmt.Errorf("%w: reminder is required", domain.ErrValidation)
	}
	if reminder.Sent {
		return nil, domain.ErrAlreadyProcessed
	}

	now := d.now().UTC()
	claimed, err := d.reminders.Claim(ctx, reminder.ID, now, now.Add(d.claimTTL), source != SourceScheduled)
	if err != nil {
		return nil, err
	}

	return d.deliver(ctx, claimed, source)
}

func (d *Dispatcher) dispatchIsolated(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (res *DispatchResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("dispatch panicked",
				zap.String("reminderId", reminder.ID),
				zap.Any("panic", p),
			)
			res, err = nil, fmt.Errorf("dispatch panicked: %v", p)
		}
	}()

	res, err = d.Dispatch(ctx, reminder, source)
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) && !errors.Is(err, domain.ErrThrottled) {
		d.logger.Error("dispatch failed",
			zap.String("reminderId", reminder.ID),
			zap.String("channel", reminder.Channel.String()),
			zap.Error(err),
		)
	}
	return res, err
}

func (d *Dispatcher) deliver(ctx context.Context, reminder *domain.Reminder, source DispatchSource) (*DispatchResult, error) {
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("reminderId", reminder.ID),
		zap.String("channel", reminder.Channel.String()),
		zap.String("source", string(source)),
	)

	var receipt *provider.Receipt
	var sendErr error

	contact, err := d.contacts.GetContact(ctx, reminder.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sendErr = provider.MissingAddress(reminder.Channel)
	case err != nil:
		d.release(reminder.ID, logger)
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	default:
		receipt, sendErr = d.send(ctx, reminder, contact, logger)
	}

	if errors.Is(sendErr, domain.ErrThrottled) {
		d.release(reminder.ID, logger)
		d.metrics.IncReminderThrottled(reminder.Channel.String())
		logger.Warn("send budget exhausted, reminder left for a later tick", zap.Error(sendErr))
		return nil, sendErr
	}

	if ctx.Err() != nil {
		d.release(reminder.ID, logger)
		return nil, ctx.Err()
	}

	outcome := d.backoff.Decide(*reminder, receipt, sendErr, d.now().UTC())
	if err := d.reminders.RecordOutcome(ctx, reminder.ID, outcome); err != nil {
		if !errors.Is(err, domain.ErrAlreadyProcessed) {
			d.release(reminder.ID, logger)
			return nil, fmt.Errorf("failed to record outcome: %w", err)
		}
		return nil, err
	}

	result := resultFromOutcome(reminder, outcome)
	d.observeOutcome(reminder.Channel, result, outcome)

	if sendErr != nil {
		logger.Warn("reminder delivery failed",
			zap.String("outcome", string(result.Outcome)),
			zap.Int("retryCount", outcome.RetryCount),
			zap.Error(sendErr),
		)
	} else {
		logger.Info("reminder delivered", zap.String("receiptId", result.ReceiptID))
	}

	d.publishEvent(ctx, result, source, logger)
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, reminder *domain.Reminder, contact *domain.Contact, logger *zap.Logger) (*provider.Receipt, error) {
	sender, err := d.senders.SenderFor(reminder.Channel)
	if err != nil {
		return nil, err
	}

	address := contact.AddressFor(reminder.Channel)
	if address == "" {
		return nil, provider.MissingAddress(reminder.Channel)
	}

	channelName := reminder.Channel.String()
	if err := d.waitForSlot(ctx, reminder, logger); err != nil {
		return nil, err
	}

	msg, err := d.buildMessage(ctx, reminder, contact)
	if err != nil {
		return nil, err
	}

	d.metrics.IncDispatchInFlight(channelName)
	defer d.metrics.DecDispatchInFlight(channelName)

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := d.now()
	receipt, err := safeSend(sendCtx, sender, address, msg)
	d.metrics.ObserveReminderSendDuration(channelName, d.now().Sub(start))
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("send timed out after %s: %w", d.sendTimeout, err)
	}
	return receipt, err
}

// waitForSlot blocks on the channel limiter, but never past the point where
// the remaining lease could no longer cover a full send. Limiter outages fail
// open.
func (d *Dispatcher) waitForSlot(ctx context.Context, reminder *domain.Reminder, logger *zap.Logger) error {
	if d.rateLimiter == nil {
		return nil
	}

	leaseUntil := d.now().Add(d.claimTTL)
	if reminder.ClaimedUntil != nil {
		leaseUntil = *reminder.ClaimedUntil
	}
	budget := leaseUntil.Sub(d.now()) - d.sendTimeout
	if budget <= 0 {
		return fmt.Errorf("%s: lease too short to wait for a send slot: %w", reminder.Channel, domain.ErrThrottled)
	}

	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := d.rateLimiter.Wait(waitCtx, reminder.Channel)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, domain.ErrThrottled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: no send slot within %s: %w", reminder.Channel, budget, domain.ErrThrottled)
	default:
		logger.Warn("rate limiter unavailable, sending anyway", zap.Error(err))
		return nil
	}
}

// safeSend turns a sender panic into a transient error.
func safeSend(ctx context.Context, sender provider.Sender, address string, msg provider.Message) (receipt *provider.Receipt, err error) {
	defer func() {
		if p := recover(); p != nil {
			receipt, err = nil, fmt.Errorf("%s sender panicked: %v", sender.Channel(), p)
		}
	}()
	return sender.Send(ctx, address, msg)
}

func (d *Dispatcher) buildMessage(ctx context.Context, reminder *domain.Reminder, contact *domain.Contact) (provider.Message, error) {
	msg := provider.Message{
		Title:    strings.TrimSpace(reminder.Title),
		Body:     strings.TrimSpace(reminder.Message),
		Language: contact.PreferredLanguage(),
		Data: map[string]string{
			"type":       "reminder",
			"reminderId": reminder.ID,
			"taskId":     reminder.TaskID,
		},
	}

	if (msg.Title == "" || msg.Body == "") && d.tasks != nil {
		if task, err := d.tasks.GetTask(ctx, reminder.UserID, reminder.TaskID); err == nil {
			if msg.Title == "" {
				msg.Title = task.Title
			}
			if msg.Body == "" {
				msg.Body = task.Description
			}
		}
	}
	if msg.Body == "" {
		msg.Body = msg.Title
	}

	if reminder.Channel == domain.ChannelEmail {
		html, err := provider.RenderReminderHTML(msg)
		if err != nil {
			return msg, fmt.Errorf("failed to render email body: %w", err)
		}
		msg.HTML = html
	}

	return msg, nil
}

func (d *Dispatcher) release(id string, logger *zap.Logger) {
	// The caller's context may already be canceled.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := d.reminders.ReleaseClaim(ctx, id); err != nil {
		logger.Warn("failed to release reminder claim", zap.Error(err))
	}
}

func (d *Dispatcher) observeOutcome(channel domain.Channel, result *DispatchResult, outcome domain.Outcome) {
	channelName := channel.String()
	switch result.Outcome {
	case OutcomeSent:
		d.metrics.IncReminderSent(channelName)
	case OutcomeRetryScheduled:
		d.metrics.IncRetryScheduled(channelName)
	default:
		reason := "permanent_error"
		if outcome.Details.MaxRetriesReached {
			reason = "retry_exhausted"
		}
		d.metrics.IncReminderFailed(channelName, reason)
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, result *DispatchResult, source DispatchSource, logger *zap.Logger) {
	r := result.Reminder
	event := queue.DeliveryEvent{
		ReminderID:    r.ID,
		UserID:        r.UserID,
		TaskID:        r.TaskID,
		Channel:       r.Channel,
		Outcome:       queue.EventOutcome(result.Outcome),
		Status:        r.DeliveryStatus,
		RetryCount:    r.RetryCount,
		NextAttemptAt: result.NextAttemptAt,
		ReceiptID:     result.ReceiptID,
		Error:         result.Error,
		Source:        string(source),
		OccurredAt:    d.now().UTC(),
	}

	if err := d.events.PublishEvent(ctx, event); err != nil {
		logger.Warn("failed to publish delivery event", zap.Error(err))
	}
}

// resultFromOutcome applies outcome to a copy of the claimed reminder.
func resultFromOutcome(claimed *domain.Reminder, outcome domain.Outcome) *DispatchResult {
	updated := *claimed
	updated.Sent = outcome.Sent
	if outcome.SentAt != nil {
		updated.SentAt = outcome.SentAt
	}
	updated.DeliveryStatus = outcome.DeliveryStatus
	updated.DeliveryDetails = outcome.Details
	updated.RetryCount = outcome.RetryCount
	if outcome.ScheduledAt != nil {
		updated.ScheduledAt = *outcome.ScheduledAt
	}
	updated.ClaimedUntil = nil

	result := &DispatchResult{
		Reminder:  &updated,
		ReceiptID: outcome.Details.ReceiptID,
		Error:     outcome.Details.LastError,
	}
	switch {
	case outcome.Sent:
		result.Outcome = OutcomeSent
	case outcome.DeliveryStatus == domain.DeliveryPending:
		result.Outcome = OutcomeRetryScheduled
		result.NextAttemptAt = outcome.ScheduledAt
	default:
		result.Outcome = OutcomeFailed
	}
	return result
}
