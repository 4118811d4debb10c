package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/shared/infrastructure/observability"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*sqs.GetQueueUrlOutput), args.Error(1)
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func (m *mockSQS) SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*sqs.SendMessageBatchOutput), args.Error(1)
}

func newTestSQS(client SQSAPI) *SQSQueue {
	logger, metrics, _ := observability.NewDiscard().ComponentsScoped("queue.sqs")
	return NewSQSQueueWithClient(client, logger, metrics)
}

func TestSQSQueue_PublishCachesQueueURL(t *testing.T) {
	client := &mockSQS{}
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs/report.downloaded")}, nil).Once()
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs/report.downloaded" &&
			aws.ToString(in.MessageBody) == `{"post_id":"1001"}`
	})).Return(&sqs.SendMessageOutput{}, nil).Twice()

	q := newTestSQS(client)
	msg := &ports.QueueMessage{Target: "report.downloaded", Body: map[string]string{"post_id": "1001"}}

	require.NoError(t, q.Publish(context.Background(), msg))
	require.NoError(t, q.Publish(context.Background(), msg))
	client.AssertExpectations(t)
}

func TestSQSQueue_PublishKey(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		key       string
		wantGroup string
	}{
		{name: "standard queue carries key attribute", target: "report.extracted", key: "1001"},
		{name: "fifo queue groups by key", target: "report.extracted.fifo", key: "1001", wantGroup: "1001"},
		{name: "fifo queue without key groups by target", target: "report.extracted.fifo", wantGroup: "report.extracted.fifo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSQS{}
			client.On("GetQueueUrl", mock.Anything, mock.Anything).
				Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs/" + tt.target)}, nil)
			client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
				if aws.ToString(in.MessageGroupId) != tt.wantGroup {
					return false
				}
				if tt.wantGroup != "" && aws.ToString(in.MessageDeduplicationId) == "" {
					return false
				}
				attr, ok := in.MessageAttributes["key"]
				if tt.key == "" {
					return !ok
				}
				return ok && aws.ToString(attr.StringValue) == tt.key
			})).Return(&sqs.SendMessageOutput{}, nil).Once()

			err := newTestSQS(client).Publish(context.Background(),
				&ports.QueueMessage{Target: tt.target, Body: map[string]int{"files": 2}, Key: tt.key})

			require.NoError(t, err)
			client.AssertExpectations(t)
		})
	}
}

func TestSQSQueue_PublishURLFailure(t *testing.T) {
	client := &mockSQS{}
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return((*sqs.GetQueueUrlOutput)(nil), errors.New("no such queue"))

	err := newTestSQS(client).Publish(context.Background(), &ports.QueueMessage{Target: "missing", Body: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestSQSQueue_PublishBatchSplitsByTen(t *testing.T) {
	client := &mockSQS{}
	client.On("GetQueueUrl", mock.Anything, mock.Anything).
		Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs/q")}, nil)
	client.On("SendMessageBatch", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageBatchInput) bool {
		return len(in.Entries) == 10
	})).Return(&sqs.SendMessageBatchOutput{}, nil).Once()
	client.On("SendMessageBatch", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageBatchInput) bool {
		return len(in.Entries) == 2
	})).Return(&sqs.SendMessageBatchOutput{
		Failed: []types.BatchResultErrorEntry{{Id: aws.String("1")}},
	}, nil).Once()

	messages := make([]*ports.QueueMessage, 12)
	for i := range messages {
		messages[i] = &ports.QueueMessage{Target: "q", Body: i}
	}

	err := newTestSQS(client).PublishBatch(context.Background(), messages)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send 1 of 2")
	client.AssertExpectations(t)
}

func TestCreateQueue_Disabled(t *testing.T) {
	q, err := CreateQueue(config.DefaultConfig(), observability.NewDiscard())
	require.NoError(t, err)
	assert.Nil(t, q)
}
