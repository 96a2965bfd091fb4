package enrich

import "time"

// EventType identifies a scheduler lifecycle event.
type EventType string

const (
	EventJobStarted   EventType = "job_started"
	EventJobSucceeded EventType = "job_succeeded"
	EventJobFailed    EventType = "job_failed"
	EventFlush        EventType = "flush"
	EventAborted      EventType = "aborted"
	EventBatchDone    EventType = "batch_done"
)

// Event is one scheduler occurrence, published for callers that render
// progress (CLI spinner, HTTP status endpoint).
type Event struct {
	Type  EventType `json:"type"`
	URL   string    `json:"url,omitempty"`
	Error string    `json:"error,omitempty"`
	Count int       `json:"count,omitempty"`
	At    time.Time `json:"at"`
}
