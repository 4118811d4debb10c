package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
)

const (
	maxBatchSize  = 20
	flushInterval = 10 * time.Second
)

// PutMetricDataAPI is the slice of the CloudWatch client used here
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// sink buffers datums and flushes them in batches. It is shared by every
// Metrics derived through WithTags.
type sink struct {
	client    PutMetricDataAPI
	namespace string
	bufferCh  chan types.MetricDatum
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Metrics implements ports.Metrics using AWS CloudWatch Metrics
type Metrics struct {
	sink        *sink
	defaultTags map[string]string
}

// NewMetrics creates a new CloudWatch metrics client
func NewMetrics(cfg *config.Config) (*Metrics, error) {
	namespace := cfg.Observability.CloudWatchNamespace
	if namespace == "" {
		// Fallback to service-based namespace
		namespace = fmt.Sprintf("%s/%s", cfg.ServiceName, cfg.Environment)
	}

	region := cfg.Observability.CloudWatchRegion
	if region == "" {
		region = cfg.Storage.S3.Region
	}
	if region == "" {
		return nil, fmt.Errorf("no AWS region specified for metrics")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for metrics: %w", err)
	}

	return NewMetricsWithClient(cloudwatch.NewFromConfig(awsCfg), namespace), nil
}

// NewMetricsWithClient starts a flusher around an existing client
func NewMetricsWithClient(client PutMetricDataAPI, namespace string) *Metrics {
	s := &sink{
		client:    client,
		namespace: namespace,
		bufferCh:  make(chan types.MetricDatum, 100),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.backgroundFlusher()

	return &Metrics{
		sink:        s,
		defaultTags: make(map[string]string),
	}
}

// WithTags returns a new Metrics instance with additional default tags
func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	return &Metrics{
		sink:        m.sink,
		defaultTags: m.mergeTags(tags),
	}
}

// IncrementCounter increments a counter metric
func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	m.enqueue(name, 1, types.StandardUnitCount, tags)
}

// RecordHistogram records a value in a histogram
func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	m.enqueue(name, value, types.StandardUnitNone, tags)
}

// RecordGauge records a gauge value
func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.enqueue(name, value, types.StandardUnitNone, tags)
}

// Close flushes whatever is buffered and stops the flusher
func (m *Metrics) Close() error {
	m.sink.closeOnce.Do(func() {
		close(m.sink.done)
	})
	m.sink.wg.Wait()
	return nil
}

func (m *Metrics) enqueue(name string, value float64, unit types.StandardUnit, tags map[string]string) {
	mergedTags := m.mergeTags(tags)

	datum := types.MetricDatum{
		MetricName: aws.String(buildMetricName(name, mergedTags)),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: tagsToDimensions(mergedTags),
	}

	select {
	case <-m.sink.done:
	case m.sink.bufferCh <- datum:
	default:
		// Buffer full, drop metric
	}
}

// mergeTags merges default tags with provided tags
func (m *Metrics) mergeTags(tags map[string]string) map[string]string {
	merged := make(map[string]string, len(m.defaultTags)+len(tags))
	for k, v := range m.defaultTags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return merged
}

// buildMetricName prefixes the metric name with the component when present
func buildMetricName(name string, tags map[string]string) string {
	if component, ok := tags["component"]; ok && component != "" {
		return fmt.Sprintf("%s.%s", component, name)
	}
	return name
}

// tagsToDimensions converts tags to CloudWatch dimensions
func tagsToDimensions(tags map[string]string) []types.Dimension {
	dimensions := make([]types.Dimension, 0, len(tags))
	for name, value := range tags {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}
	return dimensions
}

// backgroundFlusher periodically flushes metrics to CloudWatch
func (s *sink) backgroundFlusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	buffer := make([]types.MetricDatum, 0, maxBatchSize)

	for {
		select {
		case datum := <-s.bufferCh:
			buffer = append(buffer, datum)
			if len(buffer) >= maxBatchSize {
				s.flush(buffer)
				buffer = make([]types.MetricDatum, 0, maxBatchSize)
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = make([]types.MetricDatum, 0, maxBatchSize)
			}

		case <-s.done:
			// Drain what producers managed to enqueue
			for {
				select {
				case datum := <-s.bufferCh:
					buffer = append(buffer, datum)
					if len(buffer) >= maxBatchSize {
						s.flush(buffer)
						buffer = make([]types.MetricDatum, 0, maxBatchSize)
					}
				default:
					s.flush(buffer)
					return
				}
			}
		}
	}
}

// flush sends a batch to CloudWatch
func (s *sink) flush(data []types.MetricDatum) {
	if len(data) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	})
}
