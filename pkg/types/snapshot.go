package types

// Snapshot is the most recent progress reading for a job. Snapshots are not
// append-only: each write replaces the previous one, and the store keeps only
// the latest snapshot per job.
type Snapshot struct {
	JobID           string    `json:"job_id"`
	Status          JobStatus `json:"status"`
	ProgressPercent float64   `json:"progress_percent"`
	DownloadedBytes int64     `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64     `json:"total_bytes,omitempty"`
	Speed           float64   `json:"speed,omitempty"`
	ETASeconds      int64     `json:"eta,omitempty"`
	OutputFilename  string    `json:"filename,omitempty"`
	ErrorDetail     string    `json:"error,omitempty"`
}

// SSE event names used by the progress stream endpoint.
const (
	EventProgress  = "progress"
	EventHeartbeat = "heartbeat"
)
