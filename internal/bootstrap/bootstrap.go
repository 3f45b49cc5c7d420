// Package bootstrap wires the reminder engine from configuration. It is shared
// by the API server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/remindly/reminder-engine/internal/config"
	"github.com/remindly/reminder-engine/internal/directory"
	infraredis "github.com/remindly/reminder-engine/internal/infra/redis"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/provider"
	"github.com/remindly/reminder-engine/internal/queue"
	"github.com/remindly/reminder-engine/internal/ratelimit"
	"github.com/remindly/reminder-engine/internal/repository"
	"github.com/remindly/reminder-engine/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine groups the services that make up one reminder engine process.
type Engine struct {
	Reminders     *service.ReminderService
	Notifications *service.NotificationService
	Dispatcher    *service.Dispatcher
	Scheduler     *service.Scheduler
	Commands      *service.CommandHandler
	Channels      []string
}

// NewSenders builds the channel senders. A sandbox webhook replaces every
// real provider, which keeps local and staging runs off Twilio, SendGrid and FCM.
func NewSenders(cfg *config.Config) (*provider.Registry, error) {
	if endpoint := strings.TrimSpace(cfg.SandboxWebhookURL); endpoint != "" {
		return provider.NewSandboxRegistry(endpoint)
	}

	twilio := provider.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioPhoneNumber,
		BaseURL:    cfg.TwilioBaseURL,
		CallVoice:  cfg.TwilioCallVoice,
	}

	return provider.NewRegistry(
		provider.NewPushSender(provider.FCMConfig{
			ProjectID:   cfg.FCMProjectID,
			AccessToken: cfg.FCMAccessToken,
			BaseURL:     cfg.FCMBaseURL,
		}, nil),
		provider.NewSMSSender(twilio, nil),
		provider.NewEmailSender(provider.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			BaseURL:   cfg.SendGridBaseURL,
		}, nil),
		provider.NewCallSender(twilio, nil),
	), nil
}

// NewEngine wires repositories, directories, senders and services over an
// open database and redis client. events may be nil when no broker is configured.
func NewEngine(
	cfg *config.Config,
	db *gorm.DB,
	rdb *redis.Client,
	events queue.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = queue.NopEventPublisher{}
	}

	senders, err := NewSenders(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build senders: %w", err)
	}

	contacts, err := directory.NewCachedContacts(directory.NewGormContacts(db), cfg.ContactCacheSize, cfg.ContactCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to build contact cache: %w", err)
	}
	tasks := directory.NewGormTasks(db)

	reminders := repository.NewGormReminderRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	dispatcher, err := service.NewDispatcher(
		reminders,
		contacts,
		tasks,
		senders,
		newRateLimiter(rdb, cfg.RateLimits(), logger),
		events,
		service.DispatcherOptions{
			Concurrency: cfg.DispatchConcurrency,
			BatchLimit:  cfg.DispatchBatchLimit,
			SendTimeout: cfg.SendTimeout(),
			ClaimTTL:    cfg.ClaimTTL(),
			Backoff: service.BackoffPolicy{
				BaseDelay: cfg.RetryBaseDelay(),
				Factor:    float64(cfg.RetryFactor),
				MaxDelay:  cfg.RetryMaxDelay(),
			},
		},
		logger.Named("dispatcher"),
	)
	if err != nil {
		return nil, err
	}
	dispatcher.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(dispatcher, cfg.DispatchInterval(), logger.Named("scheduler"))
	if err != nil {
		return nil, err
	}
	scheduler.SetMetrics(metrics)

	reminderService, err := service.NewReminderService(
		reminders,
		attempts,
		tasks,
		dispatcher,
		cfg.DefaultMaxRetries,
		logger.Named("reminders"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := service.NewNotificationService(tasks, dispatcher, logger.Named("notifications"))
	if err != nil {
		return nil, err
	}

	commands, err := service.NewCommandHandler(reminderService, scheduler, logger.Named("commands"))
	if err != nil {
		return nil, err
	}

	channels := make([]string, 0, len(senders.Channels()))
	for _, ch := range senders.Channels() {
		channels = append(channels, ch.String())
	}

	return &Engine{
		Reminders:     reminderService,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Scheduler:     scheduler,
		Commands:      commands,
		Channels:      channels,
	}, nil
}

// newRateLimiter returns nil without redis; the dispatcher then sends unthrottled.
func newRateLimiter(rdb *redis.Client, limits ratelimit.Limits, logger *zap.Logger) ratelimit.ChannelLimiter {
	if rdb == nil {
		logger.Warn("redis unavailable, provider rate limiting disabled")
		return nil
	}
	limiter, err := infraredis.NewChannelRateLimiter(rdb, limits)
	if err != nil {
		logger.Warn("rate limiter disabled", zap.Error(err))
		return nil
	}
	return limiter
}

// Broker holds the optional RabbitMQ wiring.
type Broker struct {
	Client    *queue.RabbitMQ
	Publisher *queue.RabbitMQPublisher
	Consumer  *queue.RabbitMQConsumer
}

// NewBroker connects to RabbitMQ when RABBITMQ_URL is set and returns nil otherwise.
func NewBroker(cfg *config.Config, prefetch int, logger *zap.Logger) (*Broker, error) {
	if !cfg.BrokerEnabled() {
		return nil, nil
	}

	client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}

	return &Broker{
		Client:    client,
		Publisher: queue.NewRabbitMQPublisher(client),
		Consumer:  queue.NewRabbitMQConsumer(client, prefetch, logger.Named("consumer")),
	}, nil
}

// Events returns the broker's event publisher, or nil when b is nil.
func (b *Broker) Events() queue.EventPublisher {
	if b == nil {
		return nil
	}
	return b.Publisher
}

// Consume blocks on the command queue until ctx is done.
func (b *Broker) Consume(ctx context.Context, commands *service.CommandHandler) error {
	return b.Consumer.Consume(ctx, queue.CommandQueue, commands.Handle)
}

func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	// publisher and consumer share the client connection
	return b.Client.Close()
}
