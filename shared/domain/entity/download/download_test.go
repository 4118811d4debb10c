package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_AttemptCeiling(t *testing.T) {
	d := NewDownload("12345", "https://cdn.example.com/a.zip", "a.zip", "/data/a.zip", 3)

	for i := 1; i <= 3; i++ {
		require.NoError(t, d.Start())
		assert.Equal(t, i, d.DownloadAttempts)
		d.RecordError("403 forbidden")
	}

	assert.True(t, d.HasExceededMaxAttempts())
	assert.Equal(t, 0, d.AttemptsRemaining())
	assert.ErrorIs(t, d.Start(), ErrMaxAttemptsExceeded)
	assert.Equal(t, 3, d.DownloadAttempts)

	require.NoError(t, d.Fail("403 forbidden"))
	assert.True(t, d.IsFailed())
	assert.Equal(t, "403 forbidden", *d.ErrorMessage)
	assert.NotNil(t, d.Duration())
}

func TestDownload_Complete(t *testing.T) {
	t.Run("clears the last error", func(t *testing.T) {
		d := NewDownload("1", "u", "a.zip", "/data/a.zip", 0)
		assert.Equal(t, DefaultMaxAttempts, d.MaxAttempts())

		require.NoError(t, d.Start())
		d.RecordError("timeout")
		require.NoError(t, d.Start())
		require.NoError(t, d.Complete(2048))

		assert.True(t, d.IsCompleted())
		assert.Nil(t, d.ErrorMessage)
		assert.Equal(t, int64(2048), d.FileSize)
		assert.Equal(t, "/data/a.zip", d.Path())
	})

	t.Run("rejects empty files", func(t *testing.T) {
		d := NewDownload("1", "u", "a.zip", "/data/a.zip", 3)
		require.NoError(t, d.Start())
		assert.ErrorIs(t, d.Complete(0), ErrEmptyFile)
	})

	t.Run("completed rows are closed", func(t *testing.T) {
		d := NewDownload("1", "u", "a.zip", "/data/a.zip", 3)
		require.NoError(t, d.Start())
		require.NoError(t, d.Complete(10))
		assert.ErrorIs(t, d.Start(), ErrAlreadyCompleted)
		assert.ErrorIs(t, d.Fail("late"), ErrAlreadyCompleted)
		assert.ErrorIs(t, d.Complete(10), ErrInvalidStateTransition)
	})
}

func TestDownload_LoadedRowDefaultsCeiling(t *testing.T) {
	d := &Download{Status: StatusFailed, DownloadAttempts: 1}
	assert.Equal(t, DefaultMaxAttempts, d.MaxAttempts())
	assert.Equal(t, 2, d.AttemptsRemaining())
}
