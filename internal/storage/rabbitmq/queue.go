package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Ensure RabbitMQQueue implements the repository interface at compile time.
var _ repo.NotificationQueue = (*RabbitMQQueue)(nil)

// Constants for our RabbitMQ topology.
//
// Scheduled notifications wait in WaitQueue until their per-message TTL expires,
// then get dead-lettered into NotificationsQueue where the worker consumes them.
// RetryQueue does the same for failed deliveries.
const (
	WaitExchange          = "group-notifier.wait"
	RetryExchange         = "group-notifier.retry"
	NotificationsExchange = "group-notifier.notifications"

	NotificationsQueue = "group-notifier.notifications.process"
	WaitQueue          = "group-notifier.wait.delay"
	RetryQueue         = "group-notifier.retry.delay"

	Direct = "direct"

	// AttemptHeader carries the number of failed deliveries so far.
	AttemptHeader = "x-attempt"
	// KindHeader tells the worker what to do with the message.
	KindHeader = "x-kind"
)

// Message kinds carried in KindHeader.
const (
	// KindDeliver asks the worker to fire a scheduled notification.
	KindDeliver = "deliver"
	// KindAnnounce asks the worker to fan out a notification that was sent on creation.
	KindAnnounce = "announce"
)

// RabbitMQQueue implements the NotificationQueue interface. It acts as a PUBLISHER.
type RabbitMQQueue struct {
	mu     sync.Mutex
	ch     *amqp.Channel
	now    func() time.Time
	logger zerolog.Logger
}

// NewRabbitMQQueue creates a new instance of the RabbitMQQueue publisher.
// It receives a shared amqp.Connection to create its own channel.
func NewRabbitMQQueue(conn *amqp.Connection, logger *zerolog.Logger) (*RabbitMQQueue, error) {
	channel, err := conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to open a channel")
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to open a channel: %w", err)
	}

	queue := &RabbitMQQueue{
		ch:     channel,
		now:    time.Now,
		logger: logger.With().Str("component", "rabbitmq_publisher").Logger(),
	}

	if err = SetupTopology(channel); err != nil {
		queue.logger.Error().Err(err).Msg("storage: rabbitMQ: New: Failed to setup topology")
		_ = channel.Close()
		return nil, fmt.Errorf("storage: rabbitMQ: New: Failed to setup topology: %w", err)
	}
	queue.logger.Info().Msg("rabbitmq topology setup successful")

	return queue, nil
}

// SetupTopology declares all necessary exchanges, queues and bindings. It is idempotent.
func SetupTopology(ch *amqp.Channel) error {
	for _, name := range []string{NotificationsExchange, WaitExchange, RetryExchange} {
		if err := ch.ExchangeDeclare(name, Direct, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	queues := []struct {
		name     string
		exchange string
		args     amqp.Table
	}{
		{NotificationsQueue, NotificationsExchange, nil},
		{WaitQueue, WaitExchange, amqp.Table{"x-dead-letter-exchange": NotificationsExchange}},
		{RetryQueue, RetryExchange, amqp.Table{"x-dead-letter-exchange": NotificationsExchange}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, "", q.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", q.name, q.exchange, err)
		}
	}
	return nil
}

// Publish arms a scheduled notification: it waits until ScheduledFor, then gets processed.
func (q *RabbitMQQueue) Publish(ctx context.Context, n *model.Notification) error {
	msg, err := NewPublishing(n, KindDeliver, DelayUntil(n, q.now()))
	if err != nil {
		q.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to marshal notification")
		return err
	}
	return q.publish(ctx, WaitExchange, n, msg)
}

// Announce routes a sent notification straight to the processing queue.
func (q *RabbitMQQueue) Announce(ctx context.Context, n *model.Notification) error {
	msg, err := NewPublishing(n, KindAnnounce, 0)
	if err != nil {
		q.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to marshal notification for announce")
		return err
	}
	msg.Expiration = ""
	return q.publish(ctx, NotificationsExchange, n, msg)
}

// PublishRetry schedules a notification for a retry attempt.
func (q *RabbitMQQueue) PublishRetry(ctx context.Context, n *model.Notification, retryDelay time.Duration) error {
	msg, err := NewPublishing(n, KindFor(n), retryDelay)
	if err != nil {
		q.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to marshal notification for retry")
		return err
	}
	return q.publish(ctx, RetryExchange, n, msg)
}

func (q *RabbitMQQueue) publish(ctx context.Context, exchange string, n *model.Notification, msg amqp.Publishing) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.PublishWithContext(ctx, exchange, "", false, false, msg); err != nil {
		q.logger.Error().Err(err).Stringer("id", n.ID).Str("exchange", exchange).Msg("failed to publish notification")
		return fmt.Errorf("rabbitmq: publish to %s: %w", exchange, err)
	}
	q.logger.Debug().
		Stringer("id", n.ID).
		Str("exchange", exchange).
		Str("expiration_ms", msg.Expiration).
		Msg("notification published")
	return nil
}

// Close gracefully shuts down the channel. The connection is managed by Fx.
func (q *RabbitMQQueue) Close() error {
	if q.ch == nil {
		return nil
	}
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// DelayUntil returns how long n has to wait before it is due, never negative.
func DelayUntil(n *model.Notification, now time.Time) time.Duration {
	if n.ScheduledFor == nil {
		return 0
	}
	delay := n.ScheduledFor.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// NewPublishing builds a persistent JSON message of kind expiring after delay.
func NewPublishing(n *model.Notification, kind string, delay time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal notification: %w", err)
	}
	if delay < 0 {
		delay = 0
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    n.ID.String(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Headers:      amqp.Table{AttemptHeader: int32(n.Attempts), KindHeader: kind},
	}, nil
}

// KindFor derives the kind from the payload: only sent notifications are announced.
func KindFor(n *model.Notification) string {
	if n.SentAt != nil {
		return KindAnnounce
	}
	return KindDeliver
}

// KindFrom reads KindHeader; messages without it are deliveries.
func KindFrom(headers amqp.Table) string {
	if kind, ok := headers[KindHeader].(string); ok && kind != "" {
		return kind
	}
	return KindDeliver
}
