package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// Common storage errors
var (
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectMetadata represents metadata associated with stored objects
type ObjectMetadata struct {
	ContentType   string
	ContentLength int64
	UserMetadata  map[string]string
}

// ObjectInfo represents information about a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage mirrors extracted documents to an object store. Keys are
// "{category}/{file name}"; the bucket (or base directory) comes from config.
type Storage interface {
	// Put stores an object under key
	Put(ctx context.Context, key string, reader io.Reader, metadata ObjectMetadata) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// List returns objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
