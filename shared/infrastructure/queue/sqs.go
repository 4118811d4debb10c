package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

// SQSAPI is the subset of the SQS client used by the adapter
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSQueue publishes JSON events to SQS queues named after the target.
// Targets ending in .fifo are grouped by message key.
type SQSQueue struct {
	client  SQSAPI
	logger  ports.Logger
	metrics ports.Metrics

	mu        sync.Mutex
	queueURLs map[string]string
}

func NewSQSQueue(cfg *config.SQSConfig, obs ports.Observability) (ports.Queue, error) {
	logger, metrics, err := obs.ComponentsScoped("queue.sqs")
	if err != nil {
		return nil, fmt.Errorf("failed to get observability components: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("SQS queue initialized successfully", "region", cfg.Region)

	return NewSQSQueueWithClient(client, logger, metrics), nil
}

// NewSQSQueueWithClient wraps an existing SQS client
func NewSQSQueueWithClient(client SQSAPI, logger ports.Logger, metrics ports.Metrics) *SQSQueue {
	return &SQSQueue{
		client:    client,
		logger:    logger,
		metrics:   metrics,
		queueURLs: make(map[string]string),
	}
}

// maxBatchSize is the SQS limit for SendMessageBatch
const maxBatchSize = 10

func (q *SQSQueue) queueURL(ctx context.Context, name string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if url, ok := q.queueURLs[name]; ok {
		return url, nil
	}

	result, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", name, err)
	}

	q.queueURLs[name] = aws.ToString(result.QueueUrl)
	return q.queueURLs[name], nil
}

// envelope is the encoded form of a message, shared by single and batch sends
type envelope struct {
	body       string
	attributes map[string]types.MessageAttributeValue
	groupID    *string
	dedupID    *string
}

func encode(message *ports.QueueMessage, fifo bool) (envelope, error) {
	body, err := json.Marshal(message.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to marshal %s event: %w", message.Target, err)
	}

	env := envelope{body: string(body)}
	if message.Key != "" {
		env.attributes = map[string]types.MessageAttributeValue{
			"key": {DataType: aws.String("String"), StringValue: aws.String(message.Key)},
		}
	}
	if fifo {
		group := message.Key
		if group == "" {
			group = message.Target
		}
		env.groupID = aws.String(group)
		env.dedupID = aws.String(uuid.NewString())
	}
	return env, nil
}

func isFIFO(name string) bool {
	return strings.HasSuffix(name, ".fifo")
}

func (q *SQSQueue) Publish(ctx context.Context, message *ports.QueueMessage) error {
	start := time.Now()
	tags := map[string]string{"target": message.Target}
	defer func() {
		q.metrics.RecordHistogram("queue.publish.duration_ms", float64(time.Since(start).Milliseconds()), tags)
	}()

	url, err := q.queueURL(ctx, message.Target)
	if err != nil {
		q.logger.Error("failed to resolve queue", "error", err, "queue", message.Target)
		q.metrics.IncrementCounter("queue.publish.error",
			map[string]string{"target": message.Target, "error": "queue_url_failed"})
		return err
	}

	env, err := encode(message, isFIFO(message.Target))
	if err != nil {
		q.metrics.IncrementCounter("queue.publish.error",
			map[string]string{"target": message.Target, "error": "marshal_failed"})
		return err
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(url),
		MessageBody:            aws.String(env.body),
		MessageAttributes:      env.attributes,
		MessageGroupId:         env.groupID,
		MessageDeduplicationId: env.dedupID,
	})
	if err != nil {
		q.logger.Error("failed to send event", "error", err, "target", message.Target, "key", message.Key)
		q.metrics.IncrementCounter("queue.publish.error",
			map[string]string{"target": message.Target, "error": "send_failed"})
		return fmt.Errorf("failed to send to %s: %w", message.Target, err)
	}

	q.logger.Debug("event sent", "target", message.Target, "key", message.Key, "size", len(env.body))
	q.metrics.IncrementCounter("queue.publish.success", tags)
	return nil
}

// PublishBatch groups messages by target and sends them in chunks of ten
func (q *SQSQueue) PublishBatch(ctx context.Context, messages []*ports.QueueMessage) error {
	byTarget := make(map[string][]*ports.QueueMessage)
	var order []string
	for _, msg := range messages {
		if _, ok := byTarget[msg.Target]; !ok {
			order = append(order, msg.Target)
		}
		byTarget[msg.Target] = append(byTarget[msg.Target], msg)
	}

	for _, target := range order {
		if err := q.sendBatches(ctx, target, byTarget[target]); err != nil {
			return err
		}
	}
	return nil
}

func (q *SQSQueue) sendBatches(ctx context.Context, target string, messages []*ports.QueueMessage) error {
	url, err := q.queueURL(ctx, target)
	if err != nil {
		return err
	}
	fifo := isFIFO(target)

	for i := 0; i < len(messages); i += maxBatchSize {
		chunk := messages[i:min(i+maxBatchSize, len(messages))]
		entries := make([]types.SendMessageBatchRequestEntry, len(chunk))

		for j, msg := range chunk {
			env, err := encode(msg, fifo)
			if err != nil {
				return err
			}
			entries[j] = types.SendMessageBatchRequestEntry{
				Id:                     aws.String(strconv.Itoa(j)),
				MessageBody:            aws.String(env.body),
				MessageAttributes:      env.attributes,
				MessageGroupId:         env.groupID,
				MessageDeduplicationId: env.dedupID,
			}
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(url),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("failed to send batch to %s: %w", target, err)
		}
		if len(out.Failed) > 0 {
			q.metrics.IncrementCounter("queue.publish.error",
				map[string]string{"target": target, "error": "batch_partial"})
			return fmt.Errorf("failed to send %d of %d messages to %s", len(out.Failed), len(entries), target)
		}
	}
	return nil
}

// Close is a no-op; the SQS client holds no connection
func (q *SQSQueue) Close() error {
	return nil
}
