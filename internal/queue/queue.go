package queue

import (
	"context"
)

const (
	// CommandQueue receives commands from the rest of the application.
	CommandQueue = "reminders.commands"
	// CommandDLQ collects commands rejected as invalid or unprocessable.
	CommandDLQ = "dlq.reminders.commands"
	// EventQueue carries delivery outcomes for downstream consumers.
	EventQueue = "reminders.delivery-events"

	dlxExchangeName    = "reminders.dlx"
	commandRoutingKey  = "reminders.commands"
	commandMaxPriority = 2
)

// EventPublisher announces delivery outcomes.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event DeliveryEvent) error
}

// Publisher publishes commands and events to the broker.
type Publisher interface {
	EventPublisher
	PublishCommand(ctx context.Context, cmd CommandMessage) error
	Close() error
}

// CommandHandler handles a consumed command message.
type CommandHandler func(ctx context.Context, cmd CommandMessage) error

// Consumer consumes command messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler CommandHandler) error
	Close() error
}

// NopEventPublisher drops events; used when no broker is configured.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishEvent(context.Context, DeliveryEvent) error { return nil }

// QueueNames returns every queue declared by the topology.
func QueueNames() []string {
	return []string{CommandQueue, CommandDLQ, EventQueue}
}

// CommandPriority maps a command type to its broker priority. Manual sends
// jump ahead of scheduled ticks.
func CommandPriority(t CommandType) uint8 {
	switch t {
	case CommandDispatchReminder:
		return 2
	case CommandDispatchTick, CommandTaskDeleted, CommandReminderParsed:
		return 1
	default:
		return 0
	}
}
