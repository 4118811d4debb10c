package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"reportfetcher/workers/downloader/internal/application/ports"
)

// MockStorage is a mock implementation of ports.Storage
type MockStorage struct {
	mock.Mock
}

// Put mocks the Put method. The reader is drained so callers can close
// the underlying file.
func (m *MockStorage) Put(ctx context.Context, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	if reader != nil {
		io.Copy(io.Discard, reader)
	}
	args := m.Called(ctx, key, metadata)
	return args.Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.ObjectInfo), args.Error(1)
}

// MockQueue is a mock implementation of ports.Queue
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Publish(ctx context.Context, message *ports.QueueMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockQueue) PublishBatch(ctx context.Context, messages []*ports.QueueMessage) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func (m *MockQueue) Close() error {
	args := m.Called()
	return args.Error(0)
}
