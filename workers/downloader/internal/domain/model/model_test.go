package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status    int
		errType   ErrorType
		retryable bool
	}{
		{403, AccessDenied, false},
		{404, ClientError, false},
		{502, ServerError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := NewStatusError(tt.status, "https://cdn.example.com/a.zip")
			assert.Equal(t, tt.errType, err.Type)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.retryable, err.IsRetryable())
		})
	}

	assert.True(t, NewDownloadError(TimeoutError, "deadline", "u").IsRetryable())
	assert.False(t, NewDownloadError(WriteError, "disk full", "u").IsRetryable())
}

func TestBatchStats(t *testing.T) {
	var stats BatchStats
	stats.Add(ReportResult{Outcome: OutcomeSuccess})
	stats.Add(ReportResult{Outcome: OutcomeSuccess, AlreadyPresent: true})
	stats.Add(ReportResult{Outcome: OutcomeAccessDenied})
	stats.Add(ReportResult{Skipped: true})

	assert.Equal(t, BatchStats{Success: 2, Failed: 1, Skipped: 1}, stats)
	assert.Equal(t, 4, stats.Total())
	assert.InDelta(t, 50.0, stats.SuccessRate(), 0.001)

	stats.Merge(BatchStats{Failed: 2})
	assert.Equal(t, 3, stats.Failed)
	assert.Zero(t, BatchStats{}.SuccessRate())
}
