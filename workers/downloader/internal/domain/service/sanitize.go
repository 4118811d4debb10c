package service

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxFilenameLength = 200
	unnamed                  = "unnamed"
)

// FilenameSanitizer turns report titles, category names and archive entry
// names into names that are safe on every filesystem the tool writes to.
type FilenameSanitizer struct {
	maxLength  int
	illegal    *regexp.Regexp
	separators *regexp.Regexp
	nonWord    *regexp.Regexp
	extension  *regexp.Regexp
}

func NewFilenameSanitizer(maxLength int) *FilenameSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxFilenameLength
	}
	return &FilenameSanitizer{
		maxLength: maxLength,
		// ASCII path characters, control characters and full/half-width
		// punctuation used in Chinese titles
		illegal:    regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*【】（）《》“”‘’：；，。！？、\[\]]`),
		separators: regexp.MustCompile(`[_\s.]+`),
		nonWord:    regexp.MustCompile(`[^\p{L}\p{N}_]+`),
		extension:  regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`),
	}
}

func (s *FilenameSanitizer) MaxLength() int {
	return s.maxLength
}

// File sanitizes a file name, keeping its extension intact.
func (s *FilenameSanitizer) File(name string) string {
	ext := filepath.Ext(name)
	if !s.extension.MatchString(ext) {
		ext = ""
	}
	base := s.clean(strings.TrimSuffix(name, ext))
	return s.finish(base, ext, s.maxLength)
}

// Folder sanitizes a directory name. Only letters, digits and underscores survive.
func (s *FilenameSanitizer) Folder(name string) string {
	base := s.clean(name)
	base = s.nonWord.ReplaceAllString(base, "_")
	base = strings.Trim(s.separators.ReplaceAllString(base, "_"), "_")
	return s.finish(base, "", s.maxLength)
}

// Title sanitizes a report title used as the stem of a renamed document.
// The whole title is treated as a stem; dots never start an extension.
func (s *FilenameSanitizer) Title(title string, maxLength int) string {
	if maxLength <= 0 || maxLength > s.maxLength {
		maxLength = s.maxLength
	}
	return s.finish(s.clean(title), "", maxLength)
}

func (s *FilenameSanitizer) clean(name string) string {
	name = s.illegal.ReplaceAllString(name, "_")
	name = s.separators.ReplaceAllString(name, "_")
	return strings.Trim(name, "_. ")
}

func (s *FilenameSanitizer) finish(base, ext string, maxLength int) string {
	limit := maxLength - utf8.RuneCountInString(ext)
	if limit < 1 {
		limit = 1
	}
	if utf8.RuneCountInString(base) > limit {
		base = strings.TrimRight(string([]rune(base)[:limit]), "_")
	}
	if base == "" {
		base = unnamed
	}
	return base + ext
}
