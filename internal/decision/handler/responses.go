package handler

import (
	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	"compliancelab/internal/intake"
	"compliancelab/internal/regulatory"
)

// VerdictResponse is the wire form of a verdict.
type VerdictResponse struct {
	AllowCheckout        bool                   `json:"allow_checkout"`
	Status               string                 `json:"status"`
	IsExpired            bool                   `json:"is_expired"`
	DaysToExpiry         int                    `json:"days_to_expiry"`
	State                string                 `json:"state"`
	LicenseID            string                 `json:"license_id,omitempty"`
	AttestationsRequired []decision.Attestation `json:"attestations_required"`
	RegulatoryContext    []regulatory.Snippet   `json:"regulatory_context"`
	Reasons              []decision.Reason      `json:"reasons"`
	BlockedBy            []string               `json:"blocked_by,omitempty"`
	ReferenceDate        string                 `json:"reference_date"`
	DecisionStatus       string                 `json:"decision_status"`
	RiskLevel            string                 `json:"risk_level"`
	TraceID              string                 `json:"trace_id,omitempty"`
}

// FromVerdict converts a domain verdict to its HTTP response.
func FromVerdict(v *decision.Verdict, traceID string) *VerdictResponse {
	ds := decision.DecisionStatusFor(v)
	return &VerdictResponse{
		AllowCheckout:        v.AllowCheckout,
		Status:               v.Status.String(),
		IsExpired:            v.IsExpired,
		DaysToExpiry:         v.DaysToExpiry,
		State:                v.State,
		LicenseID:            v.LicenseID,
		AttestationsRequired: v.AttestationsRequired,
		RegulatoryContext:    v.RegulatoryContext,
		Reasons:              v.Reasons,
		BlockedBy:            v.BlockedBy,
		ReferenceDate:        v.ReferenceDate.Format(expiry.DateLayout),
		DecisionStatus:       string(ds),
		RiskLevel:            string(decision.RiskLevelFor(ds)),
		TraceID:              traceID,
	}
}

// NormalizedRequest is the wire form of a normalized license request.
type NormalizedRequest struct {
	PracticeType   string `json:"practice_type"`
	State          string `json:"state"`
	StatePermit    string `json:"state_permit"`
	StateExpiry    string `json:"state_expiry"`
	PurchaseIntent string `json:"purchase_intent"`
	Quantity       int    `json:"quantity"`
}

// NormalizeResponse is the HTTP response for POST /v1/intake/normalize.
type NormalizeResponse struct {
	Source        string            `json:"source"`
	Request       NormalizedRequest `json:"request"`
	IgnoredFields []string          `json:"ignored_fields,omitempty"`
	Verdict       *VerdictResponse  `json:"verdict,omitempty"`
}

// FromIntake converts an intake result to its HTTP response.
func FromIntake(res *intake.Result) *NormalizeResponse {
	req := res.Request
	return &NormalizeResponse{
		Source: string(res.Source),
		Request: NormalizedRequest{
			PracticeType:   req.PracticeType,
			State:          req.State,
			StatePermit:    req.StatePermit,
			StateExpiry:    req.StateExpiry.Format(expiry.DateLayout),
			PurchaseIntent: req.PurchaseIntent,
			Quantity:       req.Quantity,
		},
		IgnoredFields: res.Ignored,
	}
}
