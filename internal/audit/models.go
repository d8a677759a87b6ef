package audit

import "time"

// Action names what happened.
type Action string

const (
	ActionDecisionEvaluated Action = "decision_evaluated"
	ActionSubmissionCreated Action = "submission_created"
	ActionSubmissionStatus  Action = "submission_status_changed"
	ActionTraceReplayed     Action = "trace_replayed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	SubmissionID string    `json:"submission_id,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	Tenant       string    `json:"tenant,omitempty"`
	State        string    `json:"state,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}
