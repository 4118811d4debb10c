package report

import (
	"fmt"
	"strings"
	"time"
)

// Report is one document's metadata and lifecycle record. PostID is the
// business key; CategoryName is filled by queries that join categories.
type Report struct {
	ID           int64     `db:"id"`
	CategoryID   string    `db:"category_id"`
	CategoryName string    `db:"category_name"`
	PostID       string    `db:"post_id"`
	Title        string    `db:"title"`
	DetailURL    string    `db:"detail_url"`
	DownloadURL  *string   `db:"download_url"`
	ThumbnailURL *string   `db:"thumbnail_url"`
	ViewCount    int64     `db:"view_count"`
	PublishDate  *string   `db:"publish_date"`
	Status       Status    `db:"status"`
	LocalPath    *string   `db:"local_path"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func NewReport(categoryID, postID, title, detailURL string) (*Report, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, ErrEmptyPostID
	}
	now := time.Now()
	return &Report{
		CategoryID: categoryID,
		PostID:     postID,
		Title:      strings.TrimSpace(title),
		DetailURL:  detailURL,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ============================================================================
// BUSINESS METHODS (State transitions with rules)
// ============================================================================

// MarkReady records the resolved download URL and moves the report to ready.
func (r *Report) MarkReady(downloadURL string) error {
	downloadURL = strings.TrimSpace(downloadURL)
	if downloadURL == "" {
		return ErrMissingDownloadURL
	}
	if err := r.transition(StatusReady); err != nil {
		return err
	}
	r.DownloadURL = &downloadURL
	return nil
}

// MarkDownloaded records where the archive was saved.
func (r *Report) MarkDownloaded(localPath string) error {
	if localPath == "" {
		return ErrEmptyLocalPath
	}
	if err := r.transition(StatusDownloaded); err != nil {
		return err
	}
	r.LocalPath = &localPath
	return nil
}

// MarkFailed is used when resolution or download exhausted its attempts.
func (r *Report) MarkFailed() error {
	return r.transition(StatusFailed)
}

// MarkNoDownloadURL flags a report dispatched for download without a URL.
func (r *Report) MarkNoDownloadURL() error {
	return r.transition(StatusNoDownloadURL)
}

// ResetToReady is the bulk-reset path out of failed. Only reports with a
// known URL can be reset.
func (r *Report) ResetToReady() error {
	if r.Status != StatusFailed {
		return fmt.Errorf("%w: reset requires %s, report is %s",
			ErrInvalidTransition, StatusFailed, r.Status)
	}
	if !r.HasDownloadURL() {
		return ErrMissingDownloadURL
	}
	return r.transition(StatusReady)
}

func (r *Report) transition(to Status) error {
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, r.Status)
	}
	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return nil
}

// ============================================================================
// QUERY METHODS
// ============================================================================

func (r *Report) HasDownloadURL() bool {
	return r.DownloadURL != nil && strings.TrimSpace(*r.DownloadURL) != ""
}

func (r *Report) URL() string {
	if r.DownloadURL == nil {
		return ""
	}
	return *r.DownloadURL
}

func (r *Report) Path() string {
	if r.LocalPath == nil {
		return ""
	}
	return *r.LocalPath
}

// Category returns the category name, falling back to the id.
func (r *Report) Category() string {
	if r.CategoryName != "" {
		return r.CategoryName
	}
	if r.CategoryID != "" {
		return "category_" + r.CategoryID
	}
	return "unknown"
}
