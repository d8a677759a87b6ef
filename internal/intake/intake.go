// Package intake folds loosely-shaped form input into a decision.LicenseRequest.
//
// Two sources feed it: the manual form, whose keys already match the canonical
// field names, and a simulated PDF extraction that reports every value as a
// string under whatever label the document used. No OCR happens here; the
// caller supplies the extracted fields.
package intake

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"compliancelab/internal/decision"
	"compliancelab/internal/expiry"
	dErrors "compliancelab/pkg/domain-errors"
)

//go:embed schema.json
var schemaJSON string

// Source identifies where the fields came from.
type Source string

const (
	SourceManual  Source = "manual"
	SourcePDFStub Source = "pdf_stub"
)

// ParseSource accepts the wire value; empty means manual.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceManual:
		return SourceManual, nil
	case SourcePDFStub:
		return SourcePDFStub, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "source must be one of [manual pdf_stub]")
	}
}

// aliases maps labels seen on forms and extracted documents to canonical keys.
var aliases = map[string]string{
	"practice":           "practice_type",
	"practice_type":      "practice_type",
	"account_type":       "practice_type",
	"state":              "state",
	"license_state":      "state",
	"ship_to_state":      "state",
	"state_permit":       "state_permit",
	"permit":             "state_permit",
	"permit_number":      "state_permit",
	"license_number":     "state_permit",
	"state_license":      "state_permit",
	"state_expiry":       "state_expiry",
	"expiry":             "state_expiry",
	"expiration":         "state_expiry",
	"expiration_date":    "state_expiry",
	"license_expiration": "state_expiry",
	"purchase_intent":    "purchase_intent",
	"intent":             "purchase_intent",
	"intended_use":       "purchase_intent",
	"quantity":           "quantity",
	"qty":                "quantity",
	"requested_quantity": "quantity",
}

// Result is the normalized request plus the input keys that were not used.
type Result struct {
	Source  Source                  `json:"source"`
	Request decision.LicenseRequest `json:"request"`
	Ignored []string                `json:"ignored_fields,omitempty"`
}

// Normalizer validates folded fields against the intake schema.
type Normalizer struct {
	schema *gojsonschema.Schema
}

// NewNormalizer compiles the embedded schema.
func NewNormalizer() (*Normalizer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile intake schema: %w", err)
	}
	return &Normalizer{schema: schema}, nil
}

// Normalize folds aliases, coerces extracted strings and validates the result.
// Schema violations and unparseable dates are invalid_input errors.
func (n *Normalizer) Normalize(source Source, fields map[string]any) (*Result, error) {
	doc, ignored := fold(fields)
	if source == SourcePDFStub {
		if err := coerceExtracted(doc); err != nil {
			return nil, err
		}
	}

	res, err := n.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "intake fields could not be read")
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.Field()+": "+e.Description())
		}
		sort.Strings(msgs)
		return nil, dErrors.New(dErrors.CodeInvalidInput, strings.Join(msgs, "; "))
	}

	req, err := toRequest(doc)
	if err != nil {
		return nil, err
	}
	return &Result{Source: source, Request: req, Ignored: ignored}, nil
}

// fold lower-cases and snake-cases keys, resolves aliases and trims strings.
// When two labels map to the same field the canonical name wins.
func fold(fields map[string]any) (map[string]any, []string) {
	doc := make(map[string]any, len(fields))
	var ignored []string

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, raw := range keys {
		key := canonicalKey(raw)
		target, ok := aliases[key]
		if !ok {
			ignored = append(ignored, raw)
			continue
		}
		if _, taken := doc[target]; taken && key != target {
			continue
		}
		v := fields[raw]
		if s, isString := v.(string); isString {
			v = strings.TrimSpace(s)
		}
		doc[target] = v
	}
	return doc, ignored
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// pdfDateLayouts are the date formats seen on scanned licenses.
var pdfDateLayouts = []string{expiry.DateLayout, "01/02/2006", "1/2/2006", "Jan 2, 2006", "January 2, 2006"}

// coerceExtracted converts string values produced by extraction into the
// types the schema expects.
func coerceExtracted(doc map[string]any) error {
	if s, ok := doc["quantity"].(string); ok {
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			delete(doc, "quantity")
		} else if n, err := strconv.Atoi(s); err == nil {
			doc["quantity"] = n
		} else {
			return dErrors.New(dErrors.CodeInvalidInput, "quantity: extracted value is not a whole number")
		}
	}
	if s, ok := doc["state_expiry"].(string); ok && s != "" {
		for _, layout := range pdfDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				doc["state_expiry"] = t.Format(expiry.DateLayout)
				return nil
			}
		}
		return dErrors.New(dErrors.CodeInvalidInput, "invalid_date: state_expiry "+strconv.Quote(s)+" is not a recognised date")
	}
	return nil
}

func toRequest(doc map[string]any) (decision.LicenseRequest, error) {
	str := func(k string) string {
		s, _ := doc[k].(string)
		return s
	}

	expiresOn, err := expiry.ParseDate(str("state_expiry"))
	if err != nil {
		return decision.LicenseRequest{}, err
	}

	req := decision.LicenseRequest{
		PracticeType:   str("practice_type"),
		State:          str("state"),
		StatePermit:    str("state_permit"),
		StateExpiry:    expiresOn,
		PurchaseIntent: str("purchase_intent"),
		Quantity:       quantity(doc["quantity"]),
	}
	req.Normalize()
	return req, nil
}

// quantity reads an integral value that has already passed the schema.
func quantity(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
