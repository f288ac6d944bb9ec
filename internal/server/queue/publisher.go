package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the trigger surface: TriggerSync enqueues a job and returns
// its id, fire-and-forget to the caller.
type Publisher struct {
	url    string
	logger logging.Logger
}

func NewPublisher(url string, logger logging.Logger) *Publisher {
	return &Publisher{url: url, logger: logger.With("module", "queue_publisher")}
}

// TriggerSync publishes one persistent sync-trigger job for a connection.
func (p *Publisher) TriggerSync(ctx context.Context, connectionID string) (string, error) {
	ev := SyncTriggerEvent{
		JobID:        uuid.NewString(),
		ConnectionID: connectionID,
		RequestedAt:  time.Now().UTC(),
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return "", fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return "", fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so triggers survive broker restarts.
	if _, err := ch.QueueDeclare(syncQueueName, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.JobID,
		Timestamp:    ev.RequestedAt,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", syncQueueName, false, false, pub); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	p.logger.Info(ctx, "sync trigger enqueued", "job_id", ev.JobID, "connection_id", connectionID)
	return ev.JobID, nil
}
