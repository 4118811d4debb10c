package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"reportfetcher/workers/downloader/internal/domain/model"
)

// MockProxyPool is a mock implementation of ports.ProxyPool
type MockProxyPool struct {
	mock.Mock
}

func (m *MockProxyPool) Load() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockProxyPool) TestAll(ctx context.Context, maxWorkers int, timeout time.Duration) {
	m.Called(ctx, maxWorkers, timeout)
}

func (m *MockProxyPool) SelectFastest(ctx context.Context, region string) (*model.ProxyNode, error) {
	args := m.Called(ctx, region)
	return node(args.Get(0)), args.Error(1)
}

func (m *MockProxyPool) SelectRandom(ctx context.Context, maxLatency time.Duration) (*model.ProxyNode, error) {
	args := m.Called(ctx, maxLatency)
	return node(args.Get(0)), args.Error(1)
}

func (m *MockProxyPool) MarkFailed(n *model.ProxyNode) {
	m.Called(n)
}

func (m *MockProxyPool) Current() *model.ProxyNode {
	args := m.Called()
	return node(args.Get(0))
}

func (m *MockProxyPool) Nodes() []model.ProxyNode {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.ProxyNode)
}

func (m *MockProxyPool) Endpoint() string {
	args := m.Called()
	return args.String(0)
}

func node(v interface{}) *model.ProxyNode {
	if v == nil {
		return nil
	}
	return v.(*model.ProxyNode)
}
