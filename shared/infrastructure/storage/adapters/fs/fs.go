package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reportfetcher/shared/application/ports"
)

const metadataSuffix = ".metadata.json"

// Storage implements ports.Storage using the local filesystem
type Storage struct {
	basePath string
	logger   ports.Logger
	metrics  ports.Metrics
}

// NewStorage creates a new filesystem-based object storage
func NewStorage(basePath string, logger ports.Logger, metrics ports.Metrics) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		logger.Error("Failed to create base path", "path", basePath, "error", err)
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("Filesystem storage initialized", "base_path", basePath)
	metrics.IncrementCounter("storage.filesystem.initialized", nil)

	return &Storage{
		basePath: basePath,
		logger:   logger,
		metrics:  metrics.WithTags(map[string]string{"storage": "filesystem"}),
	}, nil
}

// Put stores an object and its metadata sidecar
func (s *Storage) Put(ctx context.Context, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	startTime := time.Now()
	s.logger.Debug("Storing object", "key", key)

	objectPath, err := s.getObjectPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		s.logger.Error("Failed to create directory", "key", key, "error", err)
		s.metrics.IncrementCounter("storage.put.errors", map[string]string{"error": "mkdir"})
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(objectPath)
	if err != nil {
		s.logger.Error("Failed to create file", "path", objectPath, "error", err)
		s.metrics.IncrementCounter("storage.put.errors", map[string]string{"error": "create"})
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	bytesWritten, err := io.Copy(file, reader)
	if err != nil {
		s.logger.Error("Failed to write data", "key", key, "error", err)
		s.metrics.IncrementCounter("storage.put.errors", map[string]string{"error": "write"})
		return fmt.Errorf("failed to write data: %w", err)
	}

	metadata.ContentLength = bytesWritten
	if err := s.saveMetadata(objectPath, metadata); err != nil {
		s.logger.Error("Failed to save metadata", "key", key, "error", err)
		s.metrics.IncrementCounter("storage.put.errors", map[string]string{"error": "metadata"})
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	duration := time.Since(startTime)
	s.logger.Info("Object stored successfully",
		"key", key,
		"bytes", bytesWritten,
		"duration_ms", duration.Milliseconds())

	s.metrics.IncrementCounter("storage.put.success", nil)
	s.metrics.RecordHistogram("storage.put.bytes", float64(bytesWritten), nil)
	s.metrics.RecordHistogram("storage.put.duration_ms", float64(duration.Milliseconds()), nil)

	return nil
}

// Delete removes an object; a missing object is not an error
func (s *Storage) Delete(ctx context.Context, key string) error {
	objectPath, err := s.getObjectPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete object", "path", objectPath, "error", err)
		s.metrics.IncrementCounter("storage.delete.errors", nil)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	// Remove metadata
	_ = os.Remove(objectPath + metadataSuffix)

	s.logger.Info("Object deleted successfully", "key", key)
	s.metrics.IncrementCounter("storage.delete.success", nil)
	return nil
}

// Exists checks if an object exists
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	objectPath, err := s.getObjectPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(objectPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	s.logger.Error("Failed to check object existence", "key", key, "error", err)
	return false, err
}

// List returns objects whose key starts with prefix
func (s *Storage) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	var objects []ports.ObjectInfo

	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if info.IsDir() || strings.HasSuffix(path, metadataSuffix) {
			return nil
		}

		relPath, _ := filepath.Rel(s.basePath, path)
		key := filepath.ToSlash(relPath)

		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		objects = append(objects, ports.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to list objects", "prefix", prefix, "error", err)
		s.metrics.IncrementCounter("storage.list.errors", nil)
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	s.metrics.RecordHistogram("storage.list.count", float64(len(objects)), nil)
	return objects, nil
}

// Metadata returns the sidecar written by Put
func (s *Storage) Metadata(key string) (ports.ObjectMetadata, error) {
	objectPath, err := s.getObjectPath(key)
	if err != nil {
		return ports.ObjectMetadata{}, err
	}

	data, err := os.ReadFile(objectPath + metadataSuffix)
	if os.IsNotExist(err) {
		return ports.ObjectMetadata{}, ports.ErrObjectNotFound
	}
	if err != nil {
		return ports.ObjectMetadata{}, err
	}

	var metadata ports.ObjectMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return ports.ObjectMetadata{}, err
	}
	return metadata, nil
}

// getObjectPath maps a key below basePath, rejecting directory traversal
func (s *Storage) getObjectPath(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	objectPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	rel, err := filepath.Rel(s.basePath, objectPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return objectPath, nil
}

func (s *Storage) saveMetadata(objectPath string, metadata ports.ObjectMetadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(objectPath+metadataSuffix, data, 0644)
}
