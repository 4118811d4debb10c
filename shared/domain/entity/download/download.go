package download

import (
	"fmt"
	"time"
)

// DefaultMaxAttempts bounds the attempts recorded by one download invocation.
const DefaultMaxAttempts = 3

// Download is one row of the append-only attempt log kept per report.
// The most recent row for a post id is canonical.
type Download struct {
	ID               int64      `db:"id"`
	PostID           string     `db:"post_id"`
	ZipURL           string     `db:"zip_url"`
	FileName         string     `db:"file_name"`
	FilePath         *string    `db:"file_path"`
	FileSize         int64      `db:"file_size"`
	Status           Status     `db:"status"`
	DownloadAttempts int        `db:"download_attempts"`
	ErrorMessage     *string    `db:"error_message"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	CreatedAt        time.Time  `db:"created_at"`

	maxAttempts int
}

func NewDownload(postID, zipURL, fileName, filePath string, maxAttempts int) *Download {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Download{
		PostID:      postID,
		ZipURL:      zipURL,
		FileName:    fileName,
		FilePath:    &filePath,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		maxAttempts: maxAttempts,
	}
}

// ============================================================================
// BUSINESS METHODS (State transitions with rules)
// ============================================================================

// Start counts a new attempt.
func (d *Download) Start() error {
	// Business rule: Cannot start if already completed
	if d.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}

	// Business rule: Check max attempts
	if d.DownloadAttempts >= d.MaxAttempts() {
		return ErrMaxAttemptsExceeded
	}

	now := time.Now()
	d.Status = StatusPending
	if d.StartedAt == nil {
		d.StartedAt = &now
	}
	d.DownloadAttempts++

	return nil
}

// RecordError keeps the reason of the latest failed attempt without closing the row.
func (d *Download) RecordError(message string) {
	d.ErrorMessage = &message
}

// Complete marks the download as successfully completed
func (d *Download) Complete(fileSize int64) error {
	if d.Status != StatusPending {
		return fmt.Errorf("%w: cannot complete download in status %s",
			ErrInvalidStateTransition, d.Status)
	}
	if fileSize <= 0 {
		return ErrEmptyFile
	}

	now := time.Now()
	d.Status = StatusCompleted
	d.FileSize = fileSize
	d.CompletedAt = &now
	d.ErrorMessage = nil

	return nil
}

// Fail closes the row as failed.
func (d *Download) Fail(errorMessage string) error {
	if d.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}

	now := time.Now()
	d.Status = StatusFailed
	d.ErrorMessage = &errorMessage
	d.CompletedAt = &now

	return nil
}

func (d *Download) MaxAttempts() int {
	if d.maxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return d.maxAttempts
}

// ============================================================================
// QUERY METHODS (Business logic queries)
// ============================================================================

func (d *Download) IsCompleted() bool {
	return d.Status == StatusCompleted
}

func (d *Download) IsFailed() bool {
	return d.Status == StatusFailed
}

// HasExceededMaxAttempts checks if max attempts have been used up
func (d *Download) HasExceededMaxAttempts() bool {
	return d.DownloadAttempts >= d.MaxAttempts()
}

// AttemptsRemaining returns the number of attempts remaining
func (d *Download) AttemptsRemaining() int {
	remaining := d.MaxAttempts() - d.DownloadAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (d *Download) Path() string {
	if d.FilePath == nil {
		return ""
	}
	return *d.FilePath
}

// Duration returns the download duration (if finished)
func (d *Download) Duration() *time.Duration {
	if d.StartedAt == nil || d.CompletedAt == nil {
		return nil
	}
	duration := d.CompletedAt.Sub(*d.StartedAt)
	return &duration
}
