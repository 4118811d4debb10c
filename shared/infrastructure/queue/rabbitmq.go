package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

// RabbitMQQueue publishes JSON events to durable queues. A single channel is
// shared, so publishes are serialized.
type RabbitMQQueue struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
	logger   ports.Logger
	metrics  ports.Metrics
	config   *config.RabbitMQConfig
}

func NewRabbitMQQueue(cfg *config.RabbitMQConfig, obs ports.Observability) (ports.Queue, error) {
	logger, metrics, err := obs.ComponentsScoped("queue.rabbitmq")
	if err != nil {
		return nil, fmt.Errorf("failed to get observability components: %w", err)
	}

	// Connect to RabbitMQ
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// Create channel
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("failed to create channel", "error", err)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	logger.Info("RabbitMQ queue initialized successfully")

	return &RabbitMQQueue{
		conn:     conn,
		channel:  channel,
		declared: make(map[string]bool),
		logger:   logger,
		metrics:  metrics,
		config:   cfg,
	}, nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, message *ports.QueueMessage) error {
	start := time.Now()
	tags := map[string]string{"target": message.Target}
	defer func() {
		q.metrics.RecordHistogram("queue.publish.duration_ms", float64(time.Since(start).Milliseconds()), tags)
	}()

	body, err := json.Marshal(message.Body)
	if err != nil {
		q.metrics.IncrementCounter("queue.publish.error",
			map[string]string{"target": message.Target, "error": "marshal_failed"})
		return fmt.Errorf("failed to marshal %s event: %w", message.Target, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(message.Target); err != nil {
		return err
	}

	if q.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.Timeout)
		defer cancel()
	}

	// default exchange, routed by queue name
	err = q.channel.PublishWithContext(ctx, "", message.Target, false, false, publishing(message, body))
	if err != nil {
		q.logger.Error("failed to publish event", "error", err, "target", message.Target, "key", message.Key)
		q.metrics.IncrementCounter("queue.publish.error",
			map[string]string{"target": message.Target, "error": "publish_failed"})
		return fmt.Errorf("failed to publish to %s: %w", message.Target, err)
	}

	q.logger.Debug("event published", "target", message.Target, "key", message.Key, "size", len(body))
	q.metrics.IncrementCounter("queue.publish.success", tags)
	return nil
}

// declare creates the durable queue on first use
func (q *RabbitMQQueue) declare(name string) error {
	if q.declared[name] {
		return nil
	}
	if _, err := q.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		q.logger.Error("failed to declare queue", "error", err, "queue", name)
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	q.declared[name] = true
	return nil
}

func publishing(message *ports.QueueMessage, body []byte) amqp091.Publishing {
	p := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Type:         message.Target,
		Body:         body,
		Timestamp:    time.Now().UTC(),
	}
	if message.Key != "" {
		p.Headers = amqp091.Table{"key": message.Key}
	}
	return p
}

func (q *RabbitMQQueue) PublishBatch(ctx context.Context, messages []*ports.QueueMessage) error {
	for _, msg := range messages {
		if err := q.Publish(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish message in batch: %w", err)
		}
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
