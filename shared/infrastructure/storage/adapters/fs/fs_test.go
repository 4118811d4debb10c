package fs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/observability"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	logger, metrics, err := observability.NewDiscard().ComponentsScoped("storage")
	require.NoError(t, err)

	s, err := NewStorage(t.TempDir(), logger, metrics)
	require.NoError(t, err)
	return s
}

func TestStorage_PutExistsListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	err := s.Put(ctx, "新能源/20240101Report.pdf", strings.NewReader("%PDF-1.4"), ports.ObjectMetadata{
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{"post_id": "1001"},
	})
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "新能源/20240101Report.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	meta, err := s.Metadata("新能源/20240101Report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", meta.ContentType)
	assert.Equal(t, int64(8), meta.ContentLength)
	assert.Equal(t, "1001", meta.UserMetadata["post_id"])

	objects, err := s.List(ctx, "新能源/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "新能源/20240101Report.pdf", objects[0].Key)

	require.NoError(t, s.Delete(ctx, "新能源/20240101Report.pdf"))
	exists, err = s.Exists(ctx, "新能源/20240101Report.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting twice is fine
	require.NoError(t, s.Delete(ctx, "新能源/20240101Report.pdf"))
}

func TestStorage_RejectsTraversal(t *testing.T) {
	s := newTestStorage(t)

	err := s.Put(context.Background(), "../escape.pdf", strings.NewReader("x"), ports.ObjectMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid object key")
}

func TestStorage_MetadataMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Metadata("nothing/here.pdf")
	assert.ErrorIs(t, err, ports.ErrObjectNotFound)
}
