package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/group-notifier/internal/domain/repository"
	"github.com/ilindan-dev/group-notifier/internal/metrics"
	"github.com/ilindan-dev/group-notifier/internal/notifiers"
	"github.com/ilindan-dev/group-notifier/internal/service"
	"github.com/ilindan-dev/group-notifier/internal/storage/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// defaultMaxRetries is the maximum number of attempts for a notification.
	defaultMaxRetries = 5
	// defaultWorkerCount is the default number of worker goroutines in the pool.
	defaultWorkerCount = 5
	// defaultSweepInterval is how often overdue notifications are looked up in storage.
	defaultSweepInterval = 30 * time.Second
)

// action is what happens to the AMQP delivery once a message is processed.
type action int

const (
	ack action = iota
	requeue
	reject
)

// Consumer listens to a RabbitMQ queue and processes messages using a pool of workers.
type Consumer struct {
	logger      zerolog.Logger
	conn        *amqp.Connection // Raw connection to create channels for each worker.
	service     *service.NotificationService
	queue       repo.NotificationQueue
	notifier    notifiers.Notifier
	guard       repo.FanOutGuard
	metrics     *metrics.Metrics
	workerCount   int
	maxRetries    int
	sweepInterval time.Duration
}

// New creates a new instance of Consumer.
func New(
	cfg *config.Config,
	logger *zerolog.Logger,
	conn *amqp.Connection,
	service *service.NotificationService,
	queue repo.NotificationQueue,
	notifier notifiers.Notifier,
	guard repo.FanOutGuard,
	m *metrics.Metrics,
) *Consumer {
	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	maxRetries := cfg.Scheduler.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	sweepInterval := cfg.Scheduler.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Consumer{
		logger:      logger.With().Str("component", "consumer").Logger(),
		conn:        conn,
		service:     service,
		queue:       queue,
		notifier:    notifier,
		guard:       guard,
		metrics:     m,
		workerCount:   workers,
		maxRetries:    maxRetries,
		sweepInterval: sweepInterval,
	}
}

// Start re-arms pending notifications, then launches the worker pool.
// This is a blocking method that will run until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	armed, err := c.service.RecoverPending(ctx)
	c.metrics.Recovered.Add(float64(armed))
	if err != nil {
		c.logger.Error().Err(err).Int("armed", armed).Msg("Recovery of pending notifications was incomplete")
	}

	c.logger.Info().Int("count", c.workerCount).Msg("Starting worker pool")
	var wg sync.WaitGroup

	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.runWorker(ctx, workerID)
		}(i + 1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runSweeper(ctx)
	}()

	wg.Wait()
	c.logger.Info().Msg("Consumer stopped")
}

// runSweeper fires overdue notifications on every tick until ctx is cancelled.
func (c *Consumer) runSweeper(ctx context.Context) {
	c.logger.Info().Dur("interval", c.sweepInterval).Msg("Starting overdue sweeper")
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fired := c.Sweep(ctx); fired > 0 {
				c.logger.Info().Int("fired", fired).Msg("Sweep fired overdue notifications")
			}
		}
	}
}

// Sweep fires every pending notification whose schedule has passed and fans
// it out. The wait queue only expires messages at its head, so a message can
// sit behind one with a longer delay; its own delivery later finds the
// notification sent and skips it.
func (c *Consumer) Sweep(ctx context.Context) int {
	due, err := c.service.DuePending(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Sweep could not list overdue notifications")
		return 0
	}

	fired := 0
	for _, p := range due {
		log := c.logger.With().Stringer("notification_id", p.ID).Str("kind", "sweep").Logger()
		n, outcome, err := c.service.Deliver(ctx, p.ID)
		if err != nil {
			// Still pending, the next tick tries again.
			log.Warn().Err(err).Msg("Sweep failed to deliver notification")
			continue
		}
		c.metrics.Deliveries.WithLabelValues(outcome.String()).Inc()
		if outcome != service.DeliveryFired {
			continue
		}
		fired++
		c.metrics.Swept.Inc()
		c.fanOutOrRetry(ctx, n, 0, log)
	}
	return fired
}

// runWorker contains the main logic for a single worker goroutine.
func (c *Consumer) runWorker(ctx context.Context, workerID int) {
	logger := c.logger.With().Int("worker_id", workerID).Logger()
	logger.Info().Msg("Worker started")

	ch, err := c.conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open channel for worker")
		return
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		logger.Error().Err(err).Msg("Failed to set QoS")
		return
	}

	msgs, err := ch.Consume(
		rabbitmq.NotificationsQueue,
		fmt.Sprintf("worker-%d", workerID), // A unique consumer tag.
		false,                              // autoAck: false. We will manually acknowledge messages.
		false,                              // exclusive
		false,                              // noLocal
		false,                              // noWait
		nil,                                // args
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register a consumer")
		return
	}

	logger.Info().Msg("Worker is waiting for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Worker stopping due to context cancellation")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn().Msg("Message channel closed by RabbitMQ, worker stopping")
				return
			}
			c.handleMessage(ctx, msg, logger)
		}
	}
}

// handleMessage processes a single message from the queue and settles it.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
	var err error
	switch c.process(ctx, rabbitmq.KindFrom(msg.Headers), msg.Body, logger) {
	case ack:
		err = msg.Ack(false)
	case requeue:
		err = msg.Nack(false, true)
	case reject:
		err = msg.Nack(false, false)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to settle message")
	}
}

// process runs one message through the service and reports how to settle it.
func (c *Consumer) process(ctx context.Context, kind string, body []byte, logger zerolog.Logger) action {
	var notification model.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		logger.Error().Err(err).Msg("Failed to unmarshal message, rejecting")
		c.metrics.Dropped.Inc()
		return reject
	}

	log := logger.With().Stringer("notification_id", notification.ID).Str("kind", kind).Logger()
	log.Info().Int("attempt", notification.Attempts+1).Msg("Processing notification")

	switch kind {
	case rabbitmq.KindAnnounce:
		n, err := c.service.Announcement(ctx, notification.ID)
		if err != nil {
			return c.retry(ctx, &notification, err, log)
		}
		if n == nil {
			c.metrics.Deliveries.WithLabelValues("skipped").Inc()
			return ack
		}
		c.metrics.Deliveries.WithLabelValues("announced").Inc()
		return c.fanOutOrRetry(ctx, n, notification.Attempts, log)

	default:
		n, outcome, err := c.service.Deliver(ctx, notification.ID)
		if err != nil {
			return c.retry(ctx, &notification, err, log)
		}
		c.metrics.Deliveries.WithLabelValues(outcome.String()).Inc()
		if outcome != service.DeliveryFired {
			return ack
		}
		return c.fanOutOrRetry(ctx, n, notification.Attempts, log)
	}
}

// fanOutOrRetry retries a failed fan-out as an announcement, since n is sent by now.
func (c *Consumer) fanOutOrRetry(ctx context.Context, n *model.Notification, attempts int, log zerolog.Logger) action {
	if err := c.fanOut(ctx, n, log); err != nil {
		n.Attempts = attempts
		return c.retry(ctx, n, err, log)
	}
	return ack
}

// fanOut notifies every member of the target groups. Per-recipient failures
// are logged and counted only; the notification is already sent.
func (c *Consumer) fanOut(ctx context.Context, n *model.Notification, log zerolog.Logger) error {
	recipients, err := c.service.Recipients(ctx, n)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	claimed, err := c.guard.Claim(ctx, n.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Fan-out guard unavailable, sending anyway")
		claimed = true
	}
	if !claimed {
		log.Info().Msg("Notification already fanned out, skipping")
		return nil
	}

	sent, failed := 0, 0
	for _, u := range recipients {
		channel := notifiers.ChannelFor(u)
		err := c.notifier.Send(ctx, n, u)
		switch {
		case errors.Is(err, notifiers.ErrNoContact):
			c.metrics.FanOut.WithLabelValues(string(channel), "skipped").Inc()
		case err != nil:
			failed++
			c.metrics.FanOut.WithLabelValues(string(channel), "failed").Inc()
			log.Warn().Err(err).Stringer("user_id", u.ID).Str("channel", string(channel)).Msg("Failed to notify recipient")
		default:
			sent++
			c.metrics.FanOut.WithLabelValues(string(channel), "sent").Inc()
		}
	}

	log.Info().Int("recipients", len(recipients)).Int("sent", sent).Int("failed", failed).Msg("Notification fanned out")
	return nil
}

// retry encapsulates the logic for processing failed attempts.
func (c *Consumer) retry(ctx context.Context, n *model.Notification, cause error, log zerolog.Logger) action {
	n.Attempts++

	if n.Attempts >= c.maxRetries {
		log.Error().Err(cause).Int("attempts", n.Attempts).Msg("Max retries reached, dropping message")
		c.metrics.Dropped.Inc()
		return ack
	}

	backoffDuration := calculateExponentialBackoff(n.Attempts)
	log.Warn().
		Err(cause).
		Int("attempt", n.Attempts).
		Dur("backoff", backoffDuration).
		Msg("Processing failed, scheduling retry")

	if err := c.queue.PublishRetry(ctx, n, backoffDuration); err != nil {
		log.Error().Err(err).Msg("CRITICAL: failed to publish message to retry queue")
		return requeue
	}

	c.metrics.Retries.Inc()
	return ack
}

// calculateExponentialBackoff implements the exponential backoff strategy.
// Formula: 5s * 2^(attempt)
func calculateExponentialBackoff(attempt int) time.Duration {
	baseDelay := 5.0
	delay := baseDelay * math.Pow(2, float64(attempt))
	return time.Duration(delay) * time.Second
}
