package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) PublishCommand(ctx context.Context, cmd CommandMessage) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command message: %w", err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command message: %w", err)
	}

	return p.publish(ctx, CommandQueue, amqp.Publishing{
		MessageId:     cmd.MessageID(),
		CorrelationId: cmd.CorrelationID,
		Type:          string(cmd.Type),
		Priority:      CommandPriority(cmd.Type),
		Body:          payload,
	})
}

func (p *RabbitMQPublisher) PublishEvent(ctx context.Context, event DeliveryEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid delivery event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery event: %w", err)
	}

	return p.publish(ctx, EventQueue, amqp.Publishing{
		MessageId: fmt.Sprintf("%s:%s:%d", event.ReminderID, event.Outcome, event.RetryCount),
		Type:      string(event.Outcome),
		Body:      payload,
	})
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, publishing amqp.Publishing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing.ContentType = "application/json"
	publishing.DeliveryMode = amqp.Persistent
	publishing.Timestamp = time.Now().UTC()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
