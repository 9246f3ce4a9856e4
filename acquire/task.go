package acquire

import (
	"regexp"
	"strings"
)

// Status is the lifecycle state of a Task. Captured and Error are terminal:
// a task never leaves them under its own id.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusNavigating Status = "navigating"
	StatusNavDone    Status = "nav_done"
	StatusCaptured   Status = "captured"
	StatusPaused     Status = "paused"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition may occur for this status.
func (s Status) Terminal() bool {
	return s == StatusCaptured || s == StatusError
}

// Task is one requested page visit. IDs are process-unique, monotonically
// assigned and never reused; URL and Site are immutable after creation.
// Status, SavedPath and Error are mutated by the worker only.
type Task struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Site      string `json:"site"`
	Status    Status `json:"status"`
	SavedPath string `json:"saved_path"`
	Error     string `json:"error"`
}

// SiteForURL classifies an operator-supplied URL by its dotted provider
// marker. Unknown providers are accepted and tagged "other".
func SiteForURL(url string) string {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "morningstar."):
		return "morningstar"
	case strings.Contains(u, "quantalys."):
		return "quantalys"
	default:
		return "other"
	}
}

var (
	urlScheme = regexp.MustCompile(`https?://`)
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	dashRun   = regexp.MustCompile(`-+`)
)

// Slugify builds a filesystem-safe fragment from a URL for capture base
// names: scheme stripped, lowercased, non-alphanumerics collapsed to dashes,
// truncated to maxLen.
func Slugify(s string, maxLen int) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = urlScheme.ReplaceAllString(s, "")
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(dashRun.ReplaceAllString(s, "-"), "-")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
