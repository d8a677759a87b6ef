// Package trace links each verdict, and the submission created from it, to a
// trace id so the console can show and replay exactly what was decided.
package trace

import (
	"time"

	"compliancelab/internal/decision"
)

// Source names the entry point that produced a trace.
type Source string

const (
	SourceEvaluate      Source = "evaluate"
	SourceIntakeManual  Source = "intake_manual"
	SourceIntakePDFStub Source = "intake_pdf_stub"
	SourceSubmission    Source = "submission"
)

// Record is the immutable snapshot of one evaluation.
type Record struct {
	TraceID       string                  `json:"trace_id"`
	SubmissionID  string                  `json:"submission_id,omitempty"`
	Source        Source                  `json:"source"`
	Request       decision.LicenseRequest `json:"request"`
	ReferenceDate time.Time               `json:"reference_date"`
	Verdict       decision.Verdict        `json:"verdict"`
	RecordedAt    time.Time               `json:"recorded_at"`
}

// LinkedSubmission is the live state of the submission a trace belongs to.
type LinkedSubmission struct {
	SubmissionID string    `json:"submission_id"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is a trace plus the current state of its submission, when it has one.
type Summary struct {
	Record         *Record                 `json:"trace"`
	DecisionStatus decision.DecisionStatus `json:"decision_status"`
	RiskLevel      decision.RiskLevel      `json:"risk_level"`
	Submission     *LinkedSubmission       `json:"submission,omitempty"`
}

// ReplayResult compares a stored verdict with a fresh evaluation of the same
// request.
type ReplayResult struct {
	TraceID       string            `json:"trace_id"`
	ReferenceDate time.Time         `json:"reference_date"`
	Original      *decision.Verdict `json:"original"`
	Replayed      *decision.Verdict `json:"replayed"`
	Matches       bool              `json:"matches"`
	Differences   []string          `json:"differences,omitempty"`
}
