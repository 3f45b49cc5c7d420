package ratelimit

import (
	"context"

	"github.com/remindly/reminder-engine/internal/domain"
)

// ChannelLimiter throttles provider calls per delivery channel.
type ChannelLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	// Wait blocks until channel has a free send slot. It returns
	// domain.ErrThrottled instead of sleeping past the context deadline.
	Wait(ctx context.Context, channel domain.Channel) error
}

// Limits holds per-second send budgets. Channels missing from PerChannel,
// or set to a non-positive value, use Default.
type Limits struct {
	Default    int64
	PerChannel map[domain.Channel]int64
}

func (l Limits) For(channel domain.Channel) int64 {
	if n := l.PerChannel[channel]; n > 0 {
		return n
	}
	return l.Default
}
