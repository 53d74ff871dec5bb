package types

import "time"

// JobStatus represents the current state of a download job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusFinalizing JobStatus = "finalizing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status is a sink: once a job reaches a
// terminal status it never transitions again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the recognized statuses. Records with an
// unknown status are rejected at the store boundary.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusFinalizing,
		JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// MaxErrorDetailLen bounds the user-facing error string stored on a job.
const MaxErrorDetailLen = 500

// Job represents one submitted media-retrieval request.
type Job struct {
	ID              string    `json:"id"`
	SourceURL       string    `json:"source_url"`
	FormatID        string    `json:"format_id"`
	Status          JobStatus `json:"status"`
	ProgressPercent float64   `json:"progress_percent"`
	Title           string    `json:"title,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	OutputFilename  string    `json:"output_filename,omitempty"`
	OutputSizeBytes int64     `json:"output_size_bytes,omitempty"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
	DispatchToken   string    `json:"dispatch_token,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// TruncateError bounds an error message to MaxErrorDetailLen bytes before it
// crosses the interface boundary.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorDetailLen {
		return msg[:MaxErrorDetailLen]
	}
	return msg
}
