package service

import (
	"errors"
	"fmt"
)

var (
	ErrArchiveNotFound = errors.New("archive does not exist")
	ErrArchiveEmpty    = errors.New("archive file is empty")
	ErrNotArchive      = errors.New("file is not a zip archive")
	ErrNoEntries       = errors.New("archive has no entries")
	ErrCorruptArchive  = errors.New("archive failed integrity check")
)

// Error wrapping functions with context
func errCorruptEntry(name string, err error) error {
	return fmt.Errorf("%w: entry %q: %v", ErrCorruptArchive, name, err)
}

func errOpenArchive(err error) error {
	return fmt.Errorf("%w: %v", ErrNotArchive, err)
}
