package service

import (
	"regexp"
	"time"
)

const timestampLayout = "20060102"

// Checked in order; the first capture that parses as a calendar date wins.
var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{8})`),
	regexp.MustCompile(`(\d{8})_`),
	regexp.MustCompile(`_(\d{8})`),
	regexp.MustCompile(`(\d{14})`),
}

// ExtractTimestamp derives the YYYYMMDD prefix used for renamed documents
// from an archive file name, falling back to the date of now.
func ExtractTimestamp(fileName string, now time.Time) string {
	for _, pattern := range timestampPatterns {
		match := pattern.FindStringSubmatch(fileName)
		if match == nil {
			continue
		}
		candidate := match[1][:8]
		if _, err := time.Parse(timestampLayout, candidate); err == nil {
			return candidate
		}
	}
	return now.Format(timestampLayout)
}
