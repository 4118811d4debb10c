package model

import "time"

// Outcome is the kind of result a download attempt produced.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeTransient    Outcome = "transient"
	OutcomeAccessDenied Outcome = "access_denied"
	OutcomeCorrupt      Outcome = "corrupt"
)

// DownloadResult is returned by the session client's file transfer. Failed
// transfers are described by the value, not by an error.
type DownloadResult struct {
	Outcome    Outcome
	StatusCode int
	Bytes      int64
	Resumed    bool
	Reason     string
}

func (r DownloadResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// ReportResult summarizes what the orchestrator did with one report.
// Skipped reports were never attempted; AlreadyPresent reports succeeded
// from a file left by an earlier run.
type ReportResult struct {
	PostID         string
	Outcome        Outcome
	Attempts       int
	Rotations      int
	Skipped        bool
	AlreadyPresent bool
	Path           string
	Bytes          int64
	Duration       time.Duration
	Reason         string
}

func (r ReportResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// BatchStats aggregates report results for one stage run.
type BatchStats struct {
	Success int
	Failed  int
	Skipped int
}

func (s *BatchStats) Add(r ReportResult) {
	switch {
	case r.Skipped:
		s.Skipped++
	case r.Succeeded():
		s.Success++
	default:
		s.Failed++
	}
}

func (s *BatchStats) Merge(other BatchStats) {
	s.Success += other.Success
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

func (s BatchStats) Total() int {
	return s.Success + s.Failed + s.Skipped
}

// SuccessRate is the share of successful reports in percent.
func (s BatchStats) SuccessRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total()) * 100
}
