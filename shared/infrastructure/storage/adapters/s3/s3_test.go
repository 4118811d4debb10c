package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/observability"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *mockAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func (m *mockAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func (m *mockAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.HeadBucketOutput), args.Error(1)
}

func (m *mockAPI) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func newTestClient(api API) *Client {
	logger, metrics, _ := observability.NewDiscard().ComponentsScoped("storage")
	return NewWithAPI(api, "reports", "us-east-2", logger, metrics)
}

func TestClient_Put(t *testing.T) {
	api := &mockAPI{}
	client := newTestClient(api)

	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "reports" &&
			aws.ToString(in.Key) == "tech/a.pdf" &&
			aws.ToString(in.ContentType) == "application/pdf" &&
			in.Metadata["post_id"] == "1001" &&
			string(body) == "pdf"
	})).Return(&s3.PutObjectOutput{}, nil)

	err := client.Put(context.Background(), "tech/a.pdf", strings.NewReader("pdf"), ports.ObjectMetadata{
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{"post_id": "1001"},
	})

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestClient_Exists(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "present", err: nil, want: true},
		{name: "missing", err: &s3types.NotFound{}, want: false},
		{name: "failure", err: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			api.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, tt.err)

			got, err := newTestClient(api).Exists(context.Background(), "tech/a.pdf")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ListPaginates(t *testing.T) {
	api := &mockAPI{}
	api.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		Contents:              []s3types.Object{{Key: aws.String("tech/a.pdf"), Size: aws.Int64(10)}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
	}, nil).Once()
	api.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "next"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []s3types.Object{{Key: aws.String("tech/b.pdf"), Size: aws.Int64(20)}},
	}, nil).Once()

	objects, err := newTestClient(api).List(context.Background(), "tech/")

	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "tech/b.pdf", objects[1].Key)
	assert.Equal(t, int64(20), objects[1].Size)
}

func TestClient_EnsureBucketCreatesMissing(t *testing.T) {
	api := &mockAPI{}
	api.On("HeadBucket", mock.Anything, mock.Anything).Return(&s3.HeadBucketOutput{}, &s3types.NotFound{})
	api.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return in.CreateBucketConfiguration != nil &&
			in.CreateBucketConfiguration.LocationConstraint == s3types.BucketLocationConstraint("us-east-2")
	})).Return(&s3.CreateBucketOutput{}, nil)

	require.NoError(t, newTestClient(api).ensureBucketExists(context.Background()))
	api.AssertExpectations(t)
}
