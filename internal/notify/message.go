// Package notify delivers change notifications to chat webhooks.
package notify

import (
	"time"
	"unicode/utf8"

	"github.com/watchhook/watchhook/internal/watch"
)

// Ellipsis is appended to a diff cut at a channel's limit.
const Ellipsis = "..."

// Per-channel diff limits, in characters.
const (
	DiscordDiffLimit  = 1000
	SlackDiffLimit    = 500
	TelegramDiffLimit = 1000
)

const timestampLayout = "2006-01-02 15:04:05"

// Message is what every channel renders: one detected change of one job.
type Message struct {
	JobName    string
	JobURL     string
	Diff       string
	DetectedAt time.Time
}

// NewMessage builds a Message from a job and its report.
func NewMessage(job watch.Job, report watch.Report, at time.Time) Message {
	return Message{
		JobName:    job.DisplayName(),
		JobURL:     job.URL,
		Diff:       report.Diff,
		DetectedAt: at,
	}
}

// Timestamp formats DetectedAt the way all channels show it.
func (m Message) Timestamp() string {
	return m.DetectedAt.Format(timestampLayout)
}

// Title is the headline shared by Discord and Slack.
func (m Message) Title() string {
	return "Website Change Detected: " + m.JobName
}

// Truncate returns s unchanged when it has at most limit characters.
// Otherwise it keeps the first limit characters and appends Ellipsis.
func Truncate(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + Ellipsis
}
