// Package queue moves due jobs from the sweeper to dispatch workers over
// RabbitMQ. Deliveries are persistent; a failed dispatch is republished
// with a retry counter and dropped after the ceiling, leaving the job to
// the max-age policy of the next sweeps.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/vedanschi/pebble-outreach/internal/model"
)

const (
	DispatchQueue = "followup_dispatch"
	maxRetries    = 3
)

type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

func Dial(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		DispatchQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, logger: logger}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

// Publish enqueues one due job for a dispatch worker.
func (q *AMQPQueue) Publish(ctx context.Context, job model.FollowUpJob) error {
	return q.publish(job, 0)
}

func (q *AMQPQueue) publish(job model.FollowUpJob, retryCount int32) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",            // default exchange
		DispatchQueue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retry-count": retryCount},
		},
	)
}

// Consume processes deliveries until the context is cancelled. The
// handler's error triggers a republish with an incremented retry count up
// to the ceiling; malformed deliveries are acked and dropped.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(ctx context.Context, job model.FollowUpJob) error) error {
	msgs, err := q.ch.Consume(
		DispatchQueue,
		"",    // consumer tag
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var job model.FollowUpJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.logger.Warn("dropping malformed job", zap.Error(err))
				d.Ack(false)
				continue
			}

			if err := handler(ctx, job); err != nil {
				retries := retryCount(d.Headers)
				if retries < maxRetries {
					if pubErr := q.publish(job, retries+1); pubErr != nil {
						q.logger.Error("requeue failed", zap.Error(pubErr))
						d.Nack(false, true)
						continue
					}
				} else {
					q.logger.Warn("job dropped after max retries",
						zap.Int("contact_id", job.ContactID),
						zap.Error(err),
					)
				}
			}
			d.Ack(false)
		}
	}
}

func retryCount(headers amqp.Table) int32 {
	if headers == nil {
		return 0
	}
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	default:
		return 0
	}
}
