package model

// JobStatus represents the state of one in-flight enrichment job.
// Terminal states are final; a failed job is re-queued only by an explicit
// caller action, never automatically.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// StepFlags selects which enrichment steps run for a job.
type StepFlags struct {
	RunResearch bool `json:"run_research"`
	RunContent  bool `json:"run_content"`
	RunAnalysis bool `json:"run_analysis"`
}

// AllSteps enables every enrichment step.
func AllSteps() StepFlags {
	return StepFlags{RunResearch: true, RunContent: true, RunAnalysis: true}
}

// Fetches reports whether any fetch step (research or content) will run.
func (f StepFlags) Fetches() bool {
	return f.RunResearch || f.RunContent
}

// EnrichmentJob is one in-flight unit of work: a record snapshot plus the
// requested steps. PriorResearch/PriorContent carry previously stored text
// for reuse when a fetch step is skipped but classification still needs
// its output.
type EnrichmentJob struct {
	Record        Record
	Flags         StepFlags
	PriorResearch string
	PriorContent  string
}

// BatchEntry is a completed job's result queued for persistence. Err is
// filled in by the batch writer when the flush attempt fails.
type BatchEntry struct {
	Record Record
	Err    string
}

// Progress is a point-in-time snapshot of a scheduler run.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Done reports whether every submitted record reached a terminal state.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Processed >= p.Total
}
