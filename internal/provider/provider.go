package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/remindly/reminder-engine/internal/domain"
)

// Sender is the outbound delivery port for one channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, address string, msg Message) (*Receipt, error)
}

// Message is the channel-neutral payload handed to a Sender.
type Message struct {
	Title    string
	Body     string
	HTML     string
	Language string
	Data     map[string]string
}

// Receipt stores provider call metadata for audit and persistence.
type Receipt struct {
	ID         string
	Channel    domain.Channel
	StatusCode int
}

// Registry maps each channel to its configured sender.
type Registry struct {
	senders map[domain.Channel]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[domain.Channel]Sender, len(senders))}
	for _, s := range senders {
		if s == nil {
			continue
		}
		r.senders[s.Channel()] = s
	}
	return r
}

// Register replaces the sender for s.Channel().
func (r *Registry) Register(s Sender) {
	if r == nil || s == nil {
		return
	}
	if r.senders == nil {
		r.senders = make(map[domain.Channel]Sender)
	}
	r.senders[s.Channel()] = s
}

// SenderFor returns the sender of channel, or a not-configured ChannelError.
func (r *Registry) SenderFor(channel domain.Channel) (Sender, error) {
	if r != nil {
		if s, ok := r.senders[channel]; ok {
			return s, nil
		}
	}
	return nil, NotConfigured(channel, fmt.Sprintf("no sender registered for channel %q", channel))
}

func (r *Registry) Channels() []domain.Channel {
	if r == nil {
		return nil
	}
	out := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
