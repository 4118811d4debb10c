package report

type Status string

const (
	StatusPending       Status = "pending"
	StatusReady         Status = "ready"
	StatusDownloaded    Status = "downloaded"
	StatusFailed        Status = "failed"
	StatusNoDownloadURL Status = "no_download_url"
)

// transitions is the lifecycle graph. Re-entering the current state is
// always allowed so repeated stage runs stay idempotent.
var transitions = map[Status][]Status{
	StatusPending:       {StatusReady, StatusFailed, StatusNoDownloadURL},
	StatusReady:         {StatusDownloaded, StatusFailed, StatusNoDownloadURL},
	StatusFailed:        {StatusReady},
	StatusDownloaded:    {},
	StatusNoDownloadURL: {},
}

func AllStatuses() []Status {
	return []Status{StatusPending, StatusReady, StatusDownloaded, StatusFailed, StatusNoDownloadURL}
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusDownloaded || s == StatusNoDownloadURL
}

func (s Status) CanTransitionTo(to Status) bool {
	if !s.IsValid() || !to.IsValid() {
		return false
	}
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
