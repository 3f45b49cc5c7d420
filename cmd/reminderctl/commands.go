package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/remindly/reminder-engine/internal/bootstrap"
	"github.com/remindly/reminder-engine/internal/config"
	"github.com/remindly/reminder-engine/internal/infra/postgresql"
	"github.com/remindly/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/remindly/reminder-engine/internal/infra/redis"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand() *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back the last) database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := postgresql.NewPostgres(cmd.Context(), cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if rollback {
				if err := migrations.Rollback(db); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				logger.Info("last migration rolled back")
				return nil
			}

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations applied", zap.Int("count", len(migrations.All())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the most recent migration")
	return cmd
}

func newTickCommand() *cobra.Command {
	var viaBroker bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch tick, for use from an external cron",
		Long: `Run one dispatch tick in-process, or with --broker publish a
dispatch.tick command for a running API instance to execute.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if viaBroker {
				return publishCommand(cmd, cfg, logger, queue.CommandMessage{Type: queue.CommandDispatchTick})
			}

			engine, closeFn, err := openEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			result, ran, err := engine.Scheduler.Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran=%t scanned=%d sent=%d retried=%d failed=%d skipped=%d errors=%d\n",
				ran, result.Scanned, result.Sent, result.Retried, result.Failed, result.Skipped, result.Errors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&viaBroker, "broker", false, "Publish a dispatch.tick command instead of running in-process")
	return cmd
}

func newDispatchCommand() *cobra.Command {
	var viaBroker bool

	cmd := &cobra.Command{
		Use:   "dispatch <reminder-id>",
		Short: "Dispatch one reminder immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reminderID := strings.TrimSpace(args[0])
			if _, err := uuid.Parse(reminderID); err != nil {
				return fmt.Errorf("reminder id must be a UUID: %w", err)
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if viaBroker {
				return publishCommand(cmd, cfg, logger, queue.CommandMessage{
					Type:       queue.CommandDispatchReminder,
					ReminderID: reminderID,
				})
			}

			engine, closeFn, err := openEngine(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := engine.Reminders.DispatchByID(cmd.Context(), reminderID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "outcome=%s status=%s retryCount=%d\n",
				result.Outcome, result.Reminder.DeliveryStatus, result.Reminder.RetryCount)
			if result.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error=%s\n", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&viaBroker, "broker", false, "Publish a dispatch.reminder command instead of running in-process")
	return cmd
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLoggerWithOptions(observability.LogOptions{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openEngine connects postgres and redis and builds an engine without a broker.
func openEngine(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*bootstrap.Engine, func(), error) {
	db, err := postgresql.NewPostgres(cmd.Context(), cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	rdb, err := infraredis.NewRedis(cmd.Context(), cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	closeFn := func() {
		_ = rdb.Close()
		_ = sqlDB.Close()
	}

	engine, err := bootstrap.NewEngine(cfg, db, rdb, nil, nil, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return engine, closeFn, nil
}

func publishCommand(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger, msg queue.CommandMessage) error {
	if !cfg.BrokerEnabled() {
		return fmt.Errorf("RABBITMQ_URL is required with --broker")
	}

	client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	publisher := queue.NewRabbitMQPublisher(client)
	defer publisher.Close() //nolint:errcheck

	msg.CorrelationID = uuid.NewString()
	if err := publisher.PublishCommand(cmd.Context(), msg); err != nil {
		return err
	}

	logger.Info("command published",
		zap.String("type", string(msg.Type)),
		zap.String("correlationId", msg.CorrelationID),
	)
	return nil
}
