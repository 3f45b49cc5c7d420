package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/remindly/reminder-engine/internal/bootstrap"
	"github.com/remindly/reminder-engine/internal/config"
	"github.com/remindly/reminder-engine/internal/handler"
	"github.com/remindly/reminder-engine/internal/infra/postgresql"
	"github.com/remindly/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/remindly/reminder-engine/internal/infra/redis"
	"github.com/remindly/reminder-engine/internal/observability"
	"github.com/remindly/reminder-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLoggerWithOptions(observability.LogOptions{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	broker, err := bootstrap.NewBroker(cfg, cfg.DispatchConcurrency, logger)
	if err != nil {
		logger.Fatal("broker initialization failed", zap.Error(err))
	}
	defer broker.Close() //nolint:errcheck

	metrics := observability.NewMetrics()
	engine, err := bootstrap.NewEngine(cfg, db, rdb, broker.Events(), metrics, logger)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger.Named("http")),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	var brokerCheck handler.Pinger
	if broker != nil {
		brokerCheck = broker.Client
	}
	handler.RegisterHealthRoutes(app, sqlDB, rdb, brokerCheck)
	if err := handler.RegisterReminderRoutes(app, engine.Reminders); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(app, engine.Notifications); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Scheduler.Start(gctx)
	})
	if broker != nil {
		g.Go(func() error {
			return broker.Consume(gctx, engine.Commands)
		})
	}
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logger.Info("reminder-engine api started",
		zap.Int("port", cfg.APIPort),
		zap.Strings("channels", engine.Channels),
		zap.Bool("broker", broker != nil),
		zap.Duration("dispatchInterval", cfg.DispatchInterval()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reminder-engine api stopped with error", zap.Error(err))
		return
	}
	logger.Info("reminder-engine api stopped")
}
