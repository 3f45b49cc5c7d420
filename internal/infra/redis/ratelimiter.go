package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/ratelimit"
)

const (
	defaultLimitPerSec int64 = 10
	keyPrefix                = "reminders:throttle"
	pollStep                 = 10 * time.Millisecond
	pollMax                  = 100 * time.Millisecond
	windowSeconds            = 1
)

// Fixed one-second window counter; the key expires with its window.
var sendSlotScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.ChannelLimiter = (*ChannelRateLimiter)(nil)

// ChannelRateLimiter shares per-channel send budgets across every engine
// instance through Redis.
type ChannelRateLimiter struct {
	client *goredis.Client
	limits ratelimit.Limits
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewChannelRateLimiter(client *goredis.Client, limits ratelimit.Limits) (*ChannelRateLimiter, error) {
	return newChannelRateLimiter(client, limits, time.Now, sleepWithContext)
}

func newChannelRateLimiter(
	client *goredis.Client,
	limits ratelimit.Limits,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ChannelRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limits.Default <= 0 {
		limits.Default = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &ChannelRateLimiter{
		client: client,
		limits: limits,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func slotKey(channel domain.Channel, window int64) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, channel, window)
}

// Allow takes one send slot from the current window of channel.
func (r *ChannelRateLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}
	if !channel.IsValid() {
		return false, fmt.Errorf("%w: unknown channel %q", domain.ErrValidation, channel)
	}

	key := slotKey(channel, r.now().UTC().Unix())
	ok, err := sendSlotScript.Run(ctx, r.client, []string{key}, r.limits.For(channel), windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %s send budget: %w", channel, err)
	}
	return ok == 1, nil
}

func (r *ChannelRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	step := pollStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < step {
			return fmt.Errorf("%s: %w", channel, domain.ErrThrottled)
		}
		if err := r.sleep(ctx, step); err != nil {
			return err
		}

		step = min(step+pollStep, pollMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
