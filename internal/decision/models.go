package decision

import (
	"strings"
	"time"

	"compliancelab/internal/expiry"
	"compliancelab/internal/regulatory"
	dErrors "compliancelab/pkg/domain-errors"
)

// LicenseRequest is the normalized input to a decision. It is built per request
// and never persisted on its own.
type LicenseRequest struct {
	PracticeType   string    `json:"practice_type"`
	State          string    `json:"state"`
	StatePermit    string    `json:"state_permit"`
	StateExpiry    time.Time `json:"state_expiry"`
	PurchaseIntent string    `json:"purchase_intent"`
	Quantity       int       `json:"quantity"`
}

// Normalize trims free-text fields and upper-cases the state code.
func (r *LicenseRequest) Normalize() {
	r.PracticeType = strings.TrimSpace(r.PracticeType)
	r.State = strings.ToUpper(strings.TrimSpace(r.State))
	r.StatePermit = strings.TrimSpace(r.StatePermit)
	r.PurchaseIntent = strings.TrimSpace(r.PurchaseIntent)
}

// Validate checks structural invariants. Unknown enum values are not errors
// here; see Engine for the jurisdiction policy.
func (r *LicenseRequest) Validate() error {
	if len(r.State) != 2 || !isLetters(r.State) {
		return dErrors.New(dErrors.CodeInvalidInput, "state must be a two-letter code")
	}
	if r.StateExpiry.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid_date: state_expiry is required")
	}
	if r.StatePermit == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "state_permit is required")
	}
	if r.Quantity < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be non-negative")
	}
	return nil
}

func isLetters(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// Attestation is a statement the purchaser must see (and possibly acknowledge)
// before checkout. ID is unique within a verdict.
type Attestation struct {
	ID              string `yaml:"id" json:"id"`
	Jurisdiction    string `yaml:"jurisdiction" json:"jurisdiction"`
	Scenario        string `yaml:"scenario" json:"scenario"`
	Text            string `yaml:"text" json:"text"`
	MustAcknowledge bool   `yaml:"must_acknowledge" json:"must_acknowledge"`
}

// Reason explains one aspect of a verdict.
type Reason string

const (
	ReasonExpired             Reason = "expired"
	ReasonNearExpiry          Reason = "near_expiry"
	ReasonAttestationRequired Reason = "attestation_required"
	ReasonUnderThreshold      Reason = "under_threshold"
	ReasonOverThreshold       Reason = "over_threshold"
	ReasonAllChecksPassed     Reason = "all_checks_passed"
)

// Verdict is the complete outcome of one evaluation. A verdict is either
// complete or not returned at all.
//
// Invariants:
//   - IsExpired == (DaysToExpiry < 0) == (Status == expired)
//   - IsExpired implies !AllowCheckout
//   - near_expiry never blocks checkout on its own
type Verdict struct {
	AllowCheckout        bool                 `json:"allow_checkout"`
	Status               expiry.Status        `json:"status"`
	IsExpired            bool                 `json:"is_expired"`
	DaysToExpiry         int                  `json:"days_to_expiry"`
	State                string               `json:"state"`
	LicenseID            string               `json:"license_id,omitempty"`
	AttestationsRequired []Attestation        `json:"attestations_required"`
	RegulatoryContext    []regulatory.Snippet `json:"regulatory_context"`
	Reasons              []Reason             `json:"reasons"`
	BlockedBy            []string             `json:"blocked_by,omitempty"`
	ReferenceDate        time.Time            `json:"reference_date"`
}

// RequiresAcknowledgement reports whether any attestation must be acknowledged.
func (v *Verdict) RequiresAcknowledgement() bool {
	for _, a := range v.AttestationsRequired {
		if a.MustAcknowledge {
			return true
		}
	}
	return false
}

// DecisionStatus condenses a verdict for work-queue listing.
type DecisionStatus string

const (
	DecisionOKToSubmit  DecisionStatus = "ok_to_submit"
	DecisionNeedsReview DecisionStatus = "needs_review"
	DecisionBlocked     DecisionStatus = "blocked"
)

// RiskLevel is the listing-friendly risk label derived from DecisionStatus.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DecisionStatusFor condenses v: blocked when checkout is refused, needs_review
// when the license is near expiry or an attestation must be acknowledged.
func DecisionStatusFor(v *Verdict) DecisionStatus {
	switch {
	case !v.AllowCheckout:
		return DecisionBlocked
	case v.Status == expiry.StatusNearExpiry, v.RequiresAcknowledgement():
		return DecisionNeedsReview
	default:
		return DecisionOKToSubmit
	}
}

// RiskLevelFor maps a decision status to its risk label.
func RiskLevelFor(ds DecisionStatus) RiskLevel {
	switch ds {
	case DecisionBlocked:
		return RiskHigh
	case DecisionNeedsReview:
		return RiskMedium
	default:
		return RiskLow
	}
}
