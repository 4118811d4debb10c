package extraction

import (
	"errors"
	"time"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

var ErrNoDownload = errors.New("extraction requires a download id")

// Extraction records the outcome of unpacking one downloaded archive.
// Re-running extraction for the same download overwrites the outcome.
type Extraction struct {
	ID          int64      `db:"id"`
	DownloadID  int64      `db:"download_id"`
	ExtractPath string     `db:"extract_path"`
	FilesCount  int        `db:"files_count"`
	Status      Status     `db:"status"`
	ExtractedAt *time.Time `db:"extracted_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

func NewExtraction(downloadID int64, extractPath string) (*Extraction, error) {
	if downloadID <= 0 {
		return nil, ErrNoDownload
	}
	return &Extraction{
		DownloadID:  downloadID,
		ExtractPath: extractPath,
		Status:      StatusSkipped,
		CreatedAt:   time.Now(),
	}, nil
}

func (e *Extraction) Complete(filesCount int) {
	now := time.Now()
	e.Status = StatusCompleted
	e.FilesCount = filesCount
	e.ExtractedAt = &now
}

// Fail records an archive that did not validate or could not be unpacked.
func (e *Extraction) Fail() {
	now := time.Now()
	e.Status = StatusFailed
	e.FilesCount = 0
	e.ExtractedAt = &now
}

func (e *Extraction) IsCompleted() bool {
	return e.Status == StatusCompleted
}
