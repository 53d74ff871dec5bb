package queue

import "context"

// TaskMessage is the wire format for one download task. The dispatch token
// lets the worker detect stale redeliveries for jobs that were resubmitted.
type TaskMessage struct {
	JobID         string `json:"job_id"`
	SourceURL     string `json:"source_url"`
	FormatID      string `json:"format_id,omitempty"`
	DispatchToken string `json:"dispatch_token,omitempty"`
}

// Handler processes one delivered task. Returning nil acknowledges the
// message; returning an error requeues it for redelivery.
type Handler func(ctx context.Context, msg TaskMessage) error

// Publisher enqueues download tasks.
type Publisher interface {
	Publish(ctx context.Context, msg TaskMessage) error
	Close() error
}

// Consumer delivers tasks to a handler with at-least-once semantics:
// acknowledgement happens only after the handler returns. Malformed payloads
// are dropped without redelivery since they can never succeed.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
