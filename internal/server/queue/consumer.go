package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

// SyncRunner is implemented by services.SyncService.
type SyncRunner interface {
	RunAttempt(ctx context.Context, connectionID string, attempt, maxAttempts int) error
}

// Consumer pulls sync-trigger jobs and drives them through the runner with a
// fixed-size worker pool. Each job gets up to maxAttempts attempts with
// exponential backoff from baseDelay; attempt numbers are passed into the
// runner explicitly so the orchestrator knows when it is on its last try.
type Consumer struct {
	url         string
	workers     int
	maxAttempts int
	baseDelay   time.Duration
	runner      SyncRunner
	logger      logging.Logger
}

func NewConsumer(url string, workers, maxAttempts int, baseDelay time.Duration, runner SyncRunner, logger logging.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Consumer{
		url:         url,
		workers:     workers,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		runner:      runner,
		logger:      logger.With("module", "queue_consumer"),
	}
}

// Run connects to the broker and consumes until ctx is cancelled, with a
// reconnect loop around broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn(ctx, "broker dial failed, retrying", "error", err.Error(), "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn(ctx, "consume loop ended, reconnecting", "error", err.Error())
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Prefetch one job per worker; a sync can run for minutes.
	if err := ch.Qos(c.workers, 0, false); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(syncQueueName, true, false, false, false, nil); err != nil {
		return err
	}

	msgs, err := ch.Consume(syncQueueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	// Closing the channel ends the deliveries range below.
	go func() {
		<-ctx.Done()
		_ = ch.Close()
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				c.handle(ctx, d)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("deliveries channel closed")
}

// handle runs one job to completion, error or retry-exhaustion. There is no
// mid-flight cancellation of an attempt; idempotent re-runs substitute for
// cancellation safety.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var ev SyncTriggerEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.logger.Error(ctx, "malformed trigger payload, dropping", "error", err.Error())
		_ = d.Nack(false, false) // do not requeue, it cannot become parseable
		return
	}

	log := c.logger.With("job_id", ev.JobID, "connection_id", ev.ConnectionID)

	attempt := 0
	b := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.baseDelay))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := c.runner.RunAttempt(ctx, ev.ConnectionID, attempt, c.maxAttempts)
		if err == nil {
			return nil
		}
		if common.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil {
		log.Error(ctx, "sync job failed", "attempts", attempt, "error", err.Error())
		_ = d.Nack(false, false) // terminal outcome already recorded; no broker requeue
		return
	}
	_ = d.Ack(false)
}
