package service

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// StoragePathService decides where archives land on disk and under which
// key extracted documents are mirrored.
type StoragePathService struct {
	baseDir   string
	sanitizer *FilenameSanitizer
}

func NewStoragePathService(baseDir string, sanitizer *FilenameSanitizer) *StoragePathService {
	return &StoragePathService{
		baseDir:   baseDir,
		sanitizer: sanitizer,
	}
}

// FileNameFromURL returns the archive name in the URL path, or a generated
// report_{unix}.zip when the path does not name a zip file.
func (s *StoragePathService) FileNameFromURL(rawURL string, now time.Time) string {
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		if strings.HasSuffix(strings.ToLower(name), ".zip") {
			return name
		}
	}
	return fmt.Sprintf("report_%d.zip", now.Unix())
}

// CategoryDir is the per-category download directory.
func (s *StoragePathService) CategoryDir(categoryName string) string {
	return filepath.Join(s.baseDir, s.sanitizer.Folder(categoryName))
}

// GeneratePath returns {baseDir}/{category}/{sanitized file name}.
func (s *StoragePathService) GeneratePath(categoryName, fileName string) string {
	return filepath.Join(s.CategoryDir(categoryName), s.sanitizer.File(fileName))
}

// MirrorKey is the object key of an extracted document: {category}/{file}.
func (s *StoragePathService) MirrorKey(categoryName, filePath string) string {
	return s.sanitizer.Folder(categoryName) + "/" + filepath.Base(filePath)
}
