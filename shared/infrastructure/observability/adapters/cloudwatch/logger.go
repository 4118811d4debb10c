package cloudwatch

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

const (
	maxLogBatch     = 500
	logBufferSize   = 1000
	logFlushTimeout = 5 * time.Second
)

// Log levels in increasing severity
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LogsAPI is the slice of the CloudWatch Logs client used here
type LogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LoggerOptions names the destination of a CloudWatch logger
type LoggerOptions struct {
	Group  string
	Stream string
	Level  string // debug, info, warn, error; defaults to info
}

// logStream buffers events for one log stream. It is shared by every Logger
// derived through WithFields.
type logStream struct {
	client    LogsAPI
	group     string
	stream    string
	bufferCh  chan logtypes.InputLogEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Logger implements ports.Logger on AWS CloudWatch Logs. Events are buffered
// and sent in batches; Close flushes what is left.
type Logger struct {
	stream *logStream
	fields map[string]interface{}
	level  int
}

// NewLogger creates the log group and stream named by cfg when missing
func NewLogger(cfg *config.Config) (*Logger, error) {
	region := cfg.Observability.CloudWatchRegion
	if region == "" {
		region = cfg.Storage.S3.Region
	}
	if region == "" {
		return nil, fmt.Errorf("no AWS region specified for logs")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for logs: %w", err)
	}

	opts := LoggerOptions{
		Group:  cfg.Observability.CloudWatchLogGroup,
		Stream: cfg.Observability.CloudWatchLogStream,
		Level:  cfg.LogLevel,
	}
	if opts.Group == "" {
		opts.Group = fmt.Sprintf("/%s/%s", cfg.ServiceName, cfg.Environment)
	}
	if opts.Stream == "" {
		opts.Stream = fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.Environment, time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger, err := NewLoggerWithClient(ctx, cloudwatchlogs.NewFromConfig(awsCfg), opts)
	if err != nil {
		return nil, err
	}
	return logger.withFields(map[string]interface{}{
		"service":     cfg.ServiceName,
		"environment": cfg.Environment,
	}), nil
}

// NewLoggerWithClient ensures the group and stream exist and starts a flusher
func NewLoggerWithClient(ctx context.Context, client LogsAPI, opts LoggerOptions) (*Logger, error) {
	_, err := client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(opts.Group),
	})
	if err != nil && !alreadyExists(err) {
		return nil, fmt.Errorf("failed to create log group %s: %w", opts.Group, err)
	}

	_, err = client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(opts.Group),
		LogStreamName: aws.String(opts.Stream),
	})
	if err != nil && !alreadyExists(err) {
		return nil, fmt.Errorf("failed to create log stream %s: %w", opts.Stream, err)
	}

	s := &logStream{
		client:   client,
		group:    opts.Group,
		stream:   opts.Stream,
		bufferCh: make(chan logtypes.InputLogEvent, logBufferSize),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.backgroundFlusher()

	return &Logger{
		stream: s,
		fields: make(map[string]interface{}),
		level:  parseLevel(opts.Level),
	}, nil
}

func alreadyExists(err error) bool {
	var exists *logtypes.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

func parseLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.log(LevelDebug, "DEBUG", msg, fields...)
}

func (l *Logger) Info(msg string, fields ...interface{}) {
	l.log(LevelInfo, "INFO", msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.log(LevelWarn, "WARN", msg, fields...)
}

func (l *Logger) Error(msg string, fields ...interface{}) {
	l.log(LevelError, "ERROR", msg, fields...)
}

// WithFields returns a Logger writing to the same stream with extra fields
func (l *Logger) WithFields(fields map[string]interface{}) ports.Logger {
	return l.withFields(fields)
}

func (l *Logger) withFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{stream: l.stream, fields: merged, level: l.level}
}

// Close sends the buffered events and stops the flusher
func (l *Logger) Close() error {
	l.stream.closeOnce.Do(func() {
		close(l.stream.done)
	})
	l.stream.wg.Wait()
	return nil
}

func (l *Logger) log(level int, levelName, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(fields)/2+3)
	for k, v := range l.fields {
		entry[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if err, ok := fields[i+1].(error); ok {
			entry[key] = err.Error()
			entry[key+"_type"] = fmt.Sprintf("%T", err)
			continue
		}
		entry[key] = fields[i+1]
	}
	if len(fields)%2 != 0 {
		entry[fmt.Sprint(fields[len(fields)-1])] = ""
	}

	now := time.Now()
	entry["level"] = levelName
	entry["message"] = msg
	entry["timestamp"] = now.UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"error":"failed to marshal log"}`, levelName, msg))
	}

	event := logtypes.InputLogEvent{
		Message:   aws.String(string(data)),
		Timestamp: aws.Int64(now.UnixMilli()),
	}

	select {
	case <-l.stream.done:
	case l.stream.bufferCh <- event:
	}
}

// backgroundFlusher sends events in batches every flushInterval
func (s *logStream) backgroundFlusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	buffer := make([]logtypes.InputLogEvent, 0, maxLogBatch)

	for {
		select {
		case event := <-s.bufferCh:
			buffer = append(buffer, event)
			if len(buffer) >= maxLogBatch {
				s.flush(buffer)
				buffer = make([]logtypes.InputLogEvent, 0, maxLogBatch)
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = make([]logtypes.InputLogEvent, 0, maxLogBatch)
			}

		case <-s.done:
			for {
				select {
				case event := <-s.bufferCh:
					buffer = append(buffer, event)
					if len(buffer) >= maxLogBatch {
						s.flush(buffer)
						buffer = make([]logtypes.InputLogEvent, 0, maxLogBatch)
					}
				default:
					s.flush(buffer)
					return
				}
			}
		}
	}
}

// flush sends one batch. PutLogEvents rejects batches out of time order.
func (s *logStream) flush(events []logtypes.InputLogEvent) {
	if len(events) == 0 {
		return
	}
	slices.SortStableFunc(events, func(a, b logtypes.InputLogEvent) int {
		return cmp.Compare(aws.ToInt64(a.Timestamp), aws.ToInt64(b.Timestamp))
	})

	ctx, cancel := context.WithTimeout(context.Background(), logFlushTimeout)
	defer cancel()

	_, _ = s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents:     events,
	})
}
