package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"

	"reportfetcher/shared/application/ports"
	"reportfetcher/workers/downloader/internal/domain/model"
)

var documentExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".ppt":  true,
	".pptx": true,
	".xls":  true,
	".xlsx": true,
}

// ArchiveProcessor validates downloaded archives, unpacks them next to the
// archive and renames the documents inside after the report title.
type ArchiveProcessor struct {
	sanitizer *FilenameSanitizer
	logger    ports.Logger
	metrics   ports.Metrics
	now       func() time.Time
}

func NewArchiveProcessor(sanitizer *FilenameSanitizer, logger ports.Logger, metrics ports.Metrics) *ArchiveProcessor {
	return &ArchiveProcessor{
		sanitizer: sanitizer,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// IsValid reports whether the archive can be extracted.
func (p *ArchiveProcessor) IsValid(archivePath string) bool {
	return p.Validate(archivePath) == nil
}

// Validate rejects missing, empty, non-zip and corrupt archives. Every entry
// is read through so CRC mismatches surface here rather than mid-extraction.
func (p *ArchiveProcessor) Validate(archivePath string) error {
	err := p.validate(archivePath)
	if err != nil {
		p.logger.Warn("archive validation failed", "path", archivePath, "error", err)
		p.metrics.IncrementCounter("archive.validate.failed", map[string]string{
			"reason": validationReason(err),
		})
	}
	return err
}

func (p *ArchiveProcessor) validate(archivePath string) error {
	info, err := os.Stat(archivePath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrArchiveNotFound
	}
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() == 0 {
		return ErrArchiveEmpty
	}

	mtype, err := mimetype.DetectFile(archivePath)
	if err != nil {
		return fmt.Errorf("detect archive type: %w", err)
	}
	if !isZip(mtype) {
		return fmt.Errorf("%w: detected %s", ErrNotArchive, mtype.String())
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return errOpenArchive(err)
	}
	defer reader.Close()

	if len(reader.File) == 0 {
		return ErrNoEntries
	}
	for _, f := range reader.File {
		if err := readThrough(f); err != nil {
			return errCorruptEntry(f.Name, err)
		}
	}
	return nil
}

// Extract unpacks every entry into the archive's directory under a sanitized,
// flattened name. With autoRename and a title, documents are renamed to
// {timestamp}{title}{ext}; a document identical to one already under its
// new name replaces nothing and is dropped. Entries that fail to extract are
// logged and counted.
func (p *ArchiveProcessor) Extract(archivePath, reportTitle string, autoRename bool) (*model.ExtractResult, error) {
	start := p.now()
	dir := filepath.Dir(archivePath)

	result := &model.ExtractResult{
		Dir:       dir,
		Timestamp: ExtractTimestamp(filepath.Base(archivePath), start),
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errOpenArchive(err)
	}
	defer reader.Close()

	logger := p.logger.WithFields(map[string]interface{}{
		"archive":   filepath.Base(archivePath),
		"timestamp": result.Timestamp,
	})
	logger.Info("extracting archive", "entries", len(reader.File), "dir", dir)

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(dir, p.sanitizer.File(f.Name))
		if target == archivePath {
			logger.Warn("entry would overwrite the archive, skipping", "entry", f.Name)
			result.Failed++
			continue
		}
		if err := extractEntry(f, target); err != nil {
			logger.Warn("failed to extract entry", "entry", f.Name, "error", err)
			result.Failed++
			continue
		}
		logger.Debug("extracted entry", "entry", f.Name, "file", filepath.Base(target))
		result.Files = append(result.Files, target)
	}

	if autoRename && strings.TrimSpace(reportTitle) != "" {
		for i, file := range result.Files {
			ext := strings.ToLower(filepath.Ext(file))
			if !documentExtensions[ext] {
				continue
			}
			renamed, duplicate, err := p.rename(file, result.Timestamp, reportTitle)
			if err != nil {
				logger.Warn("failed to rename document", "file", file, "error", err)
				continue
			}
			switch {
			case duplicate:
				logger.Debug("document already extracted", "file", filepath.Base(renamed))
				result.Files[i] = renamed
			case renamed != file:
				logger.Info("renamed document", "from", filepath.Base(file), "to", filepath.Base(renamed))
				result.Files[i] = renamed
				result.Renamed++
			}
		}
	}

	p.metrics.RecordHistogram("archive.extract.files", float64(len(result.Files)), nil)
	p.metrics.RecordHistogram("archive.extract.duration_ms", float64(p.now().Sub(start).Milliseconds()), nil)
	if result.Renamed > 0 {
		p.metrics.IncrementCounter("archive.renamed", nil)
	}
	logger.Info("archive extracted",
		"files", len(result.Files),
		"renamed", result.Renamed,
		"failed", result.Failed)

	return result, nil
}

// Cleanup deletes the archive. Callers only invoke it after validation and
// extraction both succeeded.
func (p *ArchiveProcessor) Cleanup(archivePath string) error {
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	p.logger.Info("removed archive", "path", archivePath)
	return nil
}

// DocumentName is the renamed file name for a document with extension ext.
func (p *ArchiveProcessor) DocumentName(timestamp, reportTitle, ext string) string {
	budget := p.sanitizer.MaxLength() - len(timestamp) - len(ext)
	return timestamp + p.sanitizer.Title(reportTitle, budget) + ext
}

// rename moves file to its document name, suffixing _N on collisions. When a
// taken name already holds the same bytes, file is removed and duplicate is
// true.
func (p *ArchiveProcessor) rename(file, timestamp, reportTitle string) (target string, duplicate bool, err error) {
	dir := filepath.Dir(file)
	ext := filepath.Ext(file)
	name := p.DocumentName(timestamp, reportTitle, ext)
	stem := strings.TrimSuffix(name, ext)

	target = filepath.Join(dir, name)
	if target == file {
		return file, false, nil
	}
	for n := 1; exists(target); n++ {
		same, err := sameContent(target, file)
		if err != nil {
			return file, false, err
		}
		if same {
			if err := os.Remove(file); err != nil {
				return file, false, err
			}
			return target, true, nil
		}
		target = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	if err := os.Rename(file, target); err != nil {
		return file, false, err
	}
	return target, false, nil
}

func sameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}
	sumA, err := FileChecksum(a)
	if err != nil {
		return false, err
	}
	sumB, err := FileChecksum(b)
	if err != nil {
		return false, err
	}
	return sumA == sumB, nil
}

func extractEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return err
	}
	return dst.Close()
}

func readThrough(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func isZip(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func validationReason(err error) string {
	switch {
	case errors.Is(err, ErrArchiveNotFound):
		return "not_found"
	case errors.Is(err, ErrArchiveEmpty):
		return "empty_file"
	case errors.Is(err, ErrNotArchive):
		return "not_zip"
	case errors.Is(err, ErrNoEntries):
		return "no_entries"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt"
	default:
		return "io"
	}
}
