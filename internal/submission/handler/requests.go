package handler

import (
	"encoding/json"
	"strings"
	"time"

	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	"compliancelab/internal/submission/models"
	"compliancelab/internal/submission/service"
	dErrors "compliancelab/pkg/domain-errors"
)

// SubmitRequest is the HTTP request body for POST /v1/submissions: the
// evaluate payload plus the form type and tenant.
type SubmitRequest struct {
	CSFType        string `json:"csf_type" validate:"required,max=32"`
	Tenant         string `json:"tenant" validate:"max=128"`
	PracticeType   string `json:"practice_type" validate:"max=64"`
	State          string `json:"state" validate:"required,len=2"`
	StatePermit    string `json:"state_permit" validate:"max=64"`
	StateExpiry    string `json:"state_expiry" validate:"required"`
	PurchaseIntent string `json:"purchase_intent" validate:"max=64"`
	Quantity       int    `json:"quantity"`

	// Parsed values (populated by Validate)
	parsedCSFType models.CSFType
	parsedExpiry  time.Time
}

// Validate parses the form type and expiry date.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	csf, err := models.ParseCSFType(r.CSFType)
	if err != nil {
		return err
	}
	parsed, err := expiry.ParseDate(r.StateExpiry)
	if err != nil {
		return err
	}
	r.parsedCSFType = csf
	r.parsedExpiry = parsed
	return nil
}

// ToInput builds the service input. The request itself is echoed as the
// stored payload's input.
func (r *SubmitRequest) ToInput() (service.SubmitInput, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return service.SubmitInput{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode submission input")
	}
	req := decision.LicenseRequest{
		PracticeType:   r.PracticeType,
		State:          r.State,
		StatePermit:    r.StatePermit,
		StateExpiry:    r.parsedExpiry,
		PurchaseIntent: r.PurchaseIntent,
		Quantity:       r.Quantity,
	}
	req.Normalize()
	return service.SubmitInput{
		CSFType: r.parsedCSFType,
		Tenant:  strings.TrimSpace(r.Tenant),
		Request: req,
		Input:   raw,
	}, nil
}

// UpdateStatusRequest is the HTTP request body for PATCH /v1/submissions/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`

	parsedStatus models.Status
}

// Validate parses the target status.
func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = st
	return nil
}

// ParsedStatus returns the validated status.
func (r *UpdateStatusRequest) ParsedStatus() models.Status {
	return r.parsedStatus
}
