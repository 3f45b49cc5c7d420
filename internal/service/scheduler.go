package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/remindly/reminder-engine/internal/observability"
	"go.uber.org/zap"
)

const defaultDispatchInterval = time.Minute

// TickRunner runs one dispatch batch scan.
type TickRunner interface {
	RunTick(ctx context.Context) (TickResult, error)
}

// Scheduler periodically triggers dispatch ticks. A tick requested while the
// previous one is still running is skipped; the store keeps reminders from
// being sent twice either way.
type Scheduler struct {
	runner   TickRunner
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	running  atomic.Bool
}

func NewScheduler(runner TickRunner, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("tick runner is required")
	}
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: interval,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Reminders that came due while the process was down should not wait a full interval.
	if _, _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial dispatch tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("dispatch tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one dispatch tick unless another is in progress. The boolean
// reports whether the tick ran.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.ObserveDispatchTick("skipped", 0, 0)
		s.logger.Info("dispatch tick skipped, previous tick still running")
		return TickResult{}, false, nil
	}
	defer s.running.Store(false)

	result, err := s.runner.RunTick(ctx)
	return result, true, err
}
