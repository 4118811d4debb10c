package usecase

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"reportfetcher/shared/domain/entity"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
	"reportfetcher/workers/downloader/internal/domain/service"
)

// DownloadedEvent is published after an archive lands on disk.
type DownloadedEvent struct {
	RunID      string    `json:"run_id"`
	PostID     string    `json:"post_id"`
	CategoryID string    `json:"category_id"`
	Title      string    `json:"title"`
	ZipURL     string    `json:"zip_url"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	SHA256     string    `json:"sha256,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ExtractedEvent is published after an archive was unpacked.
type ExtractedEvent struct {
	RunID      string    `json:"run_id"`
	PostID     string    `json:"post_id"`
	CategoryID string    `json:"category_id"`
	Dir        string    `json:"dir"`
	Files      []string  `json:"files"`
	Renamed    int       `json:"renamed"`
	Mirrored   []string  `json:"mirrored,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher mirrors extracted documents to object storage and emits
// lifecycle events. Both sinks are optional and failures never affect the
// report outcome. A nil *Publisher is a no-op.
type Publisher struct {
	storage ports.Storage
	queue   ports.Queue
	topics  config.QueueTopics
	paths   *service.StoragePathService
	runID   string
	logger  ports.Logger
	metrics ports.Metrics
}

func NewPublisher(
	storage ports.Storage,
	queue ports.Queue,
	topics config.QueueTopics,
	paths *service.StoragePathService,
	runID string,
	logger ports.Logger,
	metrics ports.Metrics,
) *Publisher {
	return &Publisher{
		storage: storage,
		queue:   queue,
		topics:  topics,
		paths:   paths,
		runID:   runID,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *Publisher) Downloaded(ctx context.Context, r *entity.Report, dl *entity.Download) {
	if p == nil || p.queue == nil || p.topics.Downloaded == "" {
		return
	}

	checksum, err := service.FileChecksum(dl.Path())
	if err != nil {
		p.logger.Warn("Failed to checksum archive", "post_id", r.PostID, "error", err)
	}

	p.publish(ctx, p.topics.Downloaded, r.PostID, DownloadedEvent{
		RunID:      p.runID,
		PostID:     r.PostID,
		CategoryID: r.CategoryID,
		Title:      r.Title,
		ZipURL:     dl.ZipURL,
		FilePath:   dl.Path(),
		FileSize:   dl.FileSize,
		SHA256:     checksum,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) Extracted(ctx context.Context, r *entity.Report, result *model.ExtractResult) {
	if p == nil {
		return
	}

	mirrored := p.mirror(ctx, r, result.Files)

	if p.queue == nil || p.topics.Extracted == "" {
		return
	}
	p.publish(ctx, p.topics.Extracted, r.PostID, ExtractedEvent{
		RunID:      p.runID,
		PostID:     r.PostID,
		CategoryID: r.CategoryID,
		Dir:        result.Dir,
		Files:      result.Files,
		Renamed:    result.Renamed,
		Mirrored:   mirrored,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, target, postID string, body interface{}) {
	err := p.queue.Publish(ctx, &ports.QueueMessage{Target: target, Body: body, Key: postID})
	if err != nil {
		p.logger.Error("failed to publish event", "target", target, "post_id", postID, "error", err)
		p.metrics.IncrementCounter("publisher.event.failed", map[string]string{"target": target})
		return
	}
	p.metrics.IncrementCounter("publisher.event.sent", map[string]string{"target": target})
}

// mirror uploads extracted files under "{category}/{file}". Objects that
// already exist are left untouched.
func (p *Publisher) mirror(ctx context.Context, r *entity.Report, files []string) []string {
	if p.storage == nil || len(files) == 0 {
		return nil
	}

	var keys []string
	for _, file := range files {
		key := p.paths.MirrorKey(r.Category(), file)

		exists, err := p.storage.Exists(ctx, key)
		if err != nil {
			p.logger.Warn("failed to check mirrored object", "key", key, "error", err)
			continue
		}
		if exists {
			keys = append(keys, key)
			continue
		}

		if err := p.upload(ctx, r, key, file); err != nil {
			p.logger.Error("failed to mirror document", "key", key, "error", err)
			p.metrics.IncrementCounter("publisher.mirror.failed", nil)
			continue
		}
		p.metrics.IncrementCounter("publisher.mirror.uploaded", nil)
		keys = append(keys, key)
	}

	p.logger.Info("documents mirrored", "post_id", r.PostID, "count", len(keys))
	return keys
}

func (p *Publisher) upload(ctx context.Context, r *entity.Report, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(file); err == nil {
		contentType = mtype.String()
	}

	return p.storage.Put(ctx, key, f, ports.ObjectMetadata{
		ContentType:   contentType,
		ContentLength: info.Size(),
		UserMetadata: map[string]string{
			"post-id":     r.PostID,
			"category-id": r.CategoryID,
			"extension":   filepath.Ext(file),
		},
	})
}
