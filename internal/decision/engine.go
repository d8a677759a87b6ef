package decision

import (
	"time"

	"compliancelab/internal/expiry"
	"compliancelab/internal/regulatory"
	dErrors "compliancelab/pkg/domain-errors"
)

// DefaultNearExpiryWindow is the number of days before expiry at which an
// otherwise valid license is flagged.
const DefaultNearExpiryWindow = 30

// Engine turns a LicenseRequest into a Verdict. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	rules              *RuleTable
	nearExpiryWindow   int
	strictJurisdiction bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNearExpiryWindow sets the near-expiry window in days.
func WithNearExpiryWindow(days int) EngineOption {
	return func(e *Engine) {
		if days < 0 {
			days = 0
		}
		e.nearExpiryWindow = days
	}
}

// WithStrictJurisdictions rejects unknown state codes and purchase intents
// instead of treating them as "no additional rules matched".
func WithStrictJurisdictions(strict bool) EngineOption {
	return func(e *Engine) {
		e.strictJurisdiction = strict
	}
}

// NewEngine builds an engine over rules. A nil table behaves as an empty one.
func NewEngine(rules *RuleTable, opts ...EngineOption) *Engine {
	if rules == nil {
		rules = &RuleTable{}
	}
	e := &Engine{
		rules:            rules,
		nearExpiryWindow: DefaultNearExpiryWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NearExpiryWindow returns the configured window in days.
func (e *Engine) NearExpiryWindow() int {
	return e.nearExpiryWindow
}

// Evaluate produces the verdict for req as of today. The request is normalized
// on a copy; the caller's value is not modified.
func (e *Engine) Evaluate(req LicenseRequest, today time.Time) (*Verdict, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkKnown(req); err != nil {
		return nil, err
	}

	res := expiry.Evaluate(req.StateExpiry, today, e.nearExpiryWindow)
	v := &Verdict{
		Status:               res.Status,
		IsExpired:            res.IsExpired(),
		DaysToExpiry:         res.DaysToExpiry,
		State:                req.State,
		LicenseID:            req.StatePermit,
		AttestationsRequired: []Attestation{},
		RegulatoryContext:    []regulatory.Snippet{},
		Reasons:              []Reason{},
		ReferenceDate:        expiry.Day(today),
	}

	// Checkout is already refused; remaining rules cannot change that.
	if res.IsExpired() {
		v.AllowCheckout = false
		v.Reasons = append(v.Reasons, ReasonExpired)
		return v, nil
	}

	v.AllowCheckout = true
	if res.Status == expiry.StatusNearExpiry {
		v.Reasons = append(v.Reasons, ReasonNearExpiry)
	}

	v.AttestationsRequired = e.rules.AttestationsFor(req)
	if len(v.AttestationsRequired) > 0 {
		v.Reasons = append(v.Reasons, ReasonAttestationRequired)
	}

	for _, b := range e.rules.BlocksFor(req) {
		v.AllowCheckout = false
		v.BlockedBy = append(v.BlockedBy, b.RuleID)
		v.Reasons = appendReason(v.Reasons, b.Reason)
	}

	if v.AllowCheckout && len(v.Reasons) == 0 {
		v.Reasons = append(v.Reasons, ReasonAllChecksPassed)
	}
	return v, nil
}

func (e *Engine) checkKnown(req LicenseRequest) error {
	if !e.strictJurisdiction {
		return nil
	}
	if !IsKnownJurisdiction(req.State) {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown state code: "+req.State)
	}
	if !e.rules.KnowsIntent(req.PurchaseIntent) {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown purchase_intent: "+req.PurchaseIntent)
	}
	return nil
}

func appendReason(reasons []Reason, r Reason) []Reason {
	for _, existing := range reasons {
		if existing == r {
			return reasons
		}
	}
	return append(reasons, r)
}
