// Package models holds the submission record and its status state machine.
package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliancelab/internal/decision"
	dErrors "compliancelab/pkg/domain-errors"
)

// Status is the review state of a submission.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusBlocked   Status = "blocked"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusSubmitted, StatusInReview, StatusApproved, StatusRejected, StatusBlocked}

// transitions is the legal-move table. approved, rejected and blocked are
// terminal.
var transitions = map[Status][]Status{
	StatusSubmitted: {StatusInReview, StatusBlocked},
	StatusInReview:  {StatusApproved, StatusRejected, StatusBlocked},
}

func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses, s)
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is legal. Re-applying
// the current status is allowed so clients can retry.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	return slices.Contains(transitions[s], next)
}

// ParseStatus accepts a wire value.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+raw)
	}
	return s, nil
}

// Priority orders the work queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AllPriorities lists every priority from lowest to highest.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) IsValid() bool {
	return slices.Contains(AllPriorities, p)
}

// DerivePriority maps a decision outcome to queue priority: blocked is high,
// anything needing review is medium, the rest low.
func DerivePriority(ds decision.DecisionStatus) Priority {
	switch ds {
	case decision.DecisionBlocked:
		return PriorityHigh
	case decision.DecisionNeedsReview:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// CSFType is the kind of entity a controlled substance form describes.
type CSFType string

const (
	CSFPractitioner CSFType = "practitioner"
	CSFHospital     CSFType = "hospital"
	CSFFacility     CSFType = "facility"
	CSFEMS          CSFType = "ems"
	CSFResearcher   CSFType = "researcher"
)

// AllCSFTypes lists the accepted form types.
var AllCSFTypes = []CSFType{CSFPractitioner, CSFHospital, CSFFacility, CSFEMS, CSFResearcher}

func (c CSFType) IsValid() bool {
	return slices.Contains(AllCSFTypes, c)
}

// Label is the display name used in generated titles.
func (c CSFType) Label() string {
	switch c {
	case CSFEMS:
		return "EMS"
	case "":
		return ""
	default:
		return strings.ToUpper(string(c[:1])) + string(c[1:])
	}
}

// ParseCSFType accepts a wire value.
func ParseCSFType(raw string) (CSFType, error) {
	c := CSFType(strings.ToLower(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown csf_type: "+raw)
	}
	return c, nil
}

// Submission is one CSF submitted for review. The store owns the record;
// callers only ever see copies.
type Submission struct {
	ID             string                  `json:"submission_id"`
	CSFType        CSFType                 `json:"csf_type"`
	Tenant         string                  `json:"tenant"`
	Status         Status                  `json:"status"`
	Priority       Priority                `json:"priority"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	Title          string                  `json:"title"`
	Subtitle       string                  `json:"subtitle"`
	Summary        string                  `json:"summary"`
	TraceID        string                  `json:"trace_id"`
	Payload        json.RawMessage         `json:"payload,omitempty"`
	DecisionStatus decision.DecisionStatus `json:"decision_status"`
	RiskLevel      decision.RiskLevel      `json:"risk_level"`
}

// Clone returns a deep copy.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	if s.Payload != nil {
		out.Payload = append(json.RawMessage(nil), s.Payload...)
	}
	return &out
}

// PrepareForInsert assigns missing identifiers and stamps both timestamps
// with now.
func (s *Submission) PrepareForInsert(now time.Time) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.TraceID == "" {
		s.TraceID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusSubmitted
	}
	s.CreatedAt = now
	s.UpdatedAt = now
}

// ApplyStatus sets the status and bumps UpdatedAt, never letting it fall
// before CreatedAt.
func (s *Submission) ApplyStatus(next Status, now time.Time) {
	s.Status = next
	if now.Before(s.CreatedAt) {
		now = s.CreatedAt
	}
	s.UpdatedAt = now
}

// ListFilter narrows a work-queue query. Zero values match everything; a
// non-positive Limit means no limit.
type ListFilter struct {
	Tenant   string
	Statuses []Status
	Limit    int
}

// Matches reports whether s passes every set filter.
func (f ListFilter) Matches(s *Submission) bool {
	if f.Tenant != "" && s.Tenant != f.Tenant {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
		return false
	}
	return true
}

// Apply truncates an already-ordered result to the limit.
func (f ListFilter) Apply(items []*Submission) []*Submission {
	if f.Limit > 0 && len(items) > f.Limit {
		return items[:f.Limit]
	}
	return items
}

// Statistics are recomputed over the full store on every call.
type Statistics struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
}

// NewStatistics returns zeroed counters with every status and priority present.
func NewStatistics() *Statistics {
	st := &Statistics{
		ByStatus:   make(map[Status]int, len(AllStatuses)),
		ByPriority: make(map[Priority]int, len(AllPriorities)),
	}
	for _, s := range AllStatuses {
		st.ByStatus[s] = 0
	}
	for _, p := range AllPriorities {
		st.ByPriority[p] = 0
	}
	return st
}

// Add counts one submission.
func (st *Statistics) Add(s *Submission) {
	st.Total++
	st.ByStatus[s.Status]++
	st.ByPriority[s.Priority]++
}

// SortNewestFirst orders by CreatedAt descending. The sort is stable so
// callers can pre-order ties.
func SortNewestFirst(items []*Submission) {
	slices.SortStableFunc(items, func(a, b *Submission) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// StatusGuard vets a status change against the current record. Stores call
// it while holding whatever lock or transaction protects the record, so the
// check and the write cannot interleave with another update.
type StatusGuard func(current *Submission, next Status) error
