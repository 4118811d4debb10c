package cloudwatch

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeClient) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for _, in := range f.inputs {
		for _, d := range in.MetricData {
			names = append(names, aws.ToString(d.MetricName))
		}
	}
	return names
}

func TestMetrics_CloseFlushesBuffer(t *testing.T) {
	client := &fakeClient{}
	metrics := NewMetricsWithClient(client, "ReportFetcher")
	scoped := metrics.WithTags(map[string]string{"component": "orchestrator"})

	scoped.IncrementCounter("download.success", nil)
	metrics.RecordGauge("proxy.healthy", 2, nil)

	require.NoError(t, metrics.Close())

	assert.ElementsMatch(t, []string{"orchestrator.download.success", "proxy.healthy"}, client.names())
	require.NotEmpty(t, client.inputs)
	assert.Equal(t, "ReportFetcher", aws.ToString(client.inputs[0].Namespace))
}

func TestMetrics_BatchesAtTwenty(t *testing.T) {
	client := &fakeClient{}
	metrics := NewMetricsWithClient(client, "ns")

	for i := 0; i < 45; i++ {
		metrics.IncrementCounter("tick", nil)
	}
	require.NoError(t, metrics.Close())

	client.mu.Lock()
	defer client.mu.Unlock()
	total := 0
	for _, in := range client.inputs {
		assert.LessOrEqual(t, len(in.MetricData), maxBatchSize)
		total += len(in.MetricData)
	}
	assert.Equal(t, 45, total)
}

func TestMetrics_CloseIsIdempotent(t *testing.T) {
	metrics := NewMetricsWithClient(&fakeClient{}, "ns")

	require.NoError(t, metrics.Close())
	require.NoError(t, metrics.Close())

	// Dropped silently after close
	metrics.IncrementCounter("late", nil)
}
