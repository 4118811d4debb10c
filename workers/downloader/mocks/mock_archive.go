package mocks

import (
	"github.com/stretchr/testify/mock"

	"reportfetcher/workers/downloader/internal/domain/model"
)

// MockArchiveProcessor is a mock implementation of ports.ArchiveProcessor
type MockArchiveProcessor struct {
	mock.Mock
}

func (m *MockArchiveProcessor) Validate(archivePath string) error {
	args := m.Called(archivePath)
	return args.Error(0)
}

func (m *MockArchiveProcessor) Extract(archivePath, reportTitle string, autoRename bool) (*model.ExtractResult, error) {
	args := m.Called(archivePath, reportTitle, autoRename)

	var result *model.ExtractResult
	if args.Get(0) != nil {
		result = args.Get(0).(*model.ExtractResult)
	}
	return result, args.Error(1)
}

func (m *MockArchiveProcessor) Cleanup(archivePath string) error {
	args := m.Called(archivePath)
	return args.Error(0)
}

// MockLinkResolver is a mock implementation of ports.LinkResolver
type MockLinkResolver struct {
	mock.Mock
}

func (m *MockLinkResolver) ResolveZipURL(body []byte, pageURL string) (string, error) {
	args := m.Called(body, pageURL)
	return args.String(0), args.Error(1)
}
