package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"reportfetcher/workers/downloader/internal/domain/model"
)

// MockSessionClient is a mock implementation of ports.SessionClient
type MockSessionClient struct {
	mock.Mock
}

func (m *MockSessionClient) Request(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) (*model.Page, error) {
	args := m.Called(ctx, method, url, headers, timeout)

	var page *model.Page
	if args.Get(0) != nil {
		page = args.Get(0).(*model.Page)
	}
	return page, args.Error(1)
}

func (m *MockSessionClient) DownloadFile(ctx context.Context, url, savePath, referer string) model.DownloadResult {
	args := m.Called(ctx, url, savePath, referer)
	return args.Get(0).(model.DownloadResult)
}

func (m *MockSessionClient) LastStatus() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockSessionClient) ClearCookies() {
	m.Called()
}

func (m *MockSessionClient) UseDirect() {
	m.Called()
}
