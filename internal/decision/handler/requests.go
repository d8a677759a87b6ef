package handler

import (
	"strings"
	"time"

	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	"compliancelab/internal/intake"
	dErrors "compliancelab/pkg/domain-errors"
)

// EvaluateRequest is the HTTP request body for POST /v1/decisions/evaluate.
// Quantity bounds and unknown enum values are left to the engine so they
// surface as invalid_input rather than a structural validation error.
type EvaluateRequest struct {
	PracticeType   string `json:"practice_type" validate:"max=64"`
	State          string `json:"state" validate:"required,len=2"`
	StatePermit    string `json:"state_permit" validate:"max=64"`
	StateExpiry    string `json:"state_expiry" validate:"required"`
	PurchaseIntent string `json:"purchase_intent" validate:"max=64"`
	Quantity       int    `json:"quantity"`

	// Parsed values (populated by Validate)
	parsedExpiry time.Time
}

// Validate parses the expiry date.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	parsed, err := expiry.ParseDate(r.StateExpiry)
	if err != nil {
		return err
	}
	r.parsedExpiry = parsed
	return nil
}

// ToLicenseRequest builds the normalized domain request.
func (r *EvaluateRequest) ToLicenseRequest() decision.LicenseRequest {
	req := decision.LicenseRequest{
		PracticeType:   r.PracticeType,
		State:          r.State,
		StatePermit:    r.StatePermit,
		StateExpiry:    r.parsedExpiry,
		PurchaseIntent: r.PurchaseIntent,
		Quantity:       r.Quantity,
	}
	req.Normalize()
	return req
}

// NormalizeRequest is the HTTP request body for POST /v1/intake/normalize.
type NormalizeRequest struct {
	Source   string         `json:"source" validate:"omitempty,oneof=manual pdf_stub MANUAL PDF_STUB"`
	Fields   map[string]any `json:"fields" validate:"required"`
	Evaluate bool           `json:"evaluate"`

	parsedSource intake.Source
}

// Validate parses the source.
func (r *NormalizeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	src, err := intake.ParseSource(strings.TrimSpace(r.Source))
	if err != nil {
		return err
	}
	r.parsedSource = src
	return nil
}

// ParsedSource returns the validated source.
func (r *NormalizeRequest) ParsedSource() intake.Source {
	return r.parsedSource
}
