package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "compliancelab/pkg/domain-errors"
)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer()
	require.NoError(t, err)
	return n
}

func TestNormalizeManual(t *testing.T) {
	n := newNormalizer(t)

	res, err := n.Normalize(SourceManual, map[string]any{
		"practice_type":   " Practitioner ",
		"state":           "oh",
		"state_permit":    "TDDD-1",
		"state_expiry":    "2027-03-15",
		"purchase_intent": "ControlledSubstanceUse",
		"quantity":        float64(12),
	})
	require.NoError(t, err)

	assert.Equal(t, SourceManual, res.Source)
	assert.Equal(t, "Practitioner", res.Request.PracticeType)
	assert.Equal(t, "OH", res.Request.State)
	assert.Equal(t, "TDDD-1", res.Request.StatePermit)
	assert.Equal(t, time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC), res.Request.StateExpiry)
	assert.Equal(t, 12, res.Request.Quantity)
	assert.Empty(t, res.Ignored)
}

func TestNormalizeFoldsAliases(t *testing.T) {
	n := newNormalizer(t)

	res, err := n.Normalize(SourceManual, map[string]any{
		"License State":   "nj",
		"Permit-Number":   "CDS-9",
		"expiration_date": "2026-12-01",
		"intent":          "Testosterone",
		"qty":             10,
		"facility_name":   "Main St Clinic",
	})
	require.NoError(t, err)

	assert.Equal(t, "NJ", res.Request.State)
	assert.Equal(t, "CDS-9", res.Request.StatePermit)
	assert.Equal(t, "Testosterone", res.Request.PurchaseIntent)
	assert.Equal(t, 10, res.Request.Quantity)
	assert.Equal(t, []string{"facility_name"}, res.Ignored)
}

func TestNormalizeCanonicalNameWins(t *testing.T) {
	n := newNormalizer(t)

	res, err := n.Normalize(SourceManual, map[string]any{
		"state":         "OH",
		"license_state": "NJ",
		"state_expiry":  "2027-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "OH", res.Request.State)
}

func TestNormalizePDFStub(t *testing.T) {
	n := newNormalizer(t)

	res, err := n.Normalize(SourcePDFStub, map[string]any{
		"State":              "CA",
		"License Number":     "PHY-77",
		"License Expiration": "03/15/2027",
		"Requested Quantity": "1,200",
	})
	require.NoError(t, err)
	assert.Equal(t, SourcePDFStub, res.Source)
	assert.Equal(t, "CA", res.Request.State)
	assert.Equal(t, time.Date(2027, 3, 15, 0, 0, 0, 0, time.UTC), res.Request.StateExpiry)
	assert.Equal(t, 1200, res.Request.Quantity)
}

func TestNormalizeRejects(t *testing.T) {
	n := newNormalizer(t)

	tests := []struct {
		name   string
		source Source
		fields map[string]any
		msg    string
	}{
		{
			name:   "missing expiry",
			source: SourceManual,
			fields: map[string]any{"state": "OH"},
			msg:    "state_expiry",
		},
		{
			name:   "negative quantity",
			source: SourceManual,
			fields: map[string]any{"state": "OH", "state_expiry": "2027-01-01", "quantity": -1},
			msg:    "quantity",
		},
		{
			name:   "three letter state",
			source: SourceManual,
			fields: map[string]any{"state": "OHI", "state_expiry": "2027-01-01"},
			msg:    "state",
		},
		{
			name:   "impossible date",
			source: SourceManual,
			fields: map[string]any{"state": "OH", "state_expiry": "2027-02-30"},
			msg:    "invalid_date",
		},
		{
			name:   "unreadable extracted date",
			source: SourcePDFStub,
			fields: map[string]any{"state": "OH", "expiry": "sometime next year"},
			msg:    "invalid_date",
		},
		{
			name:   "unreadable extracted quantity",
			source: SourcePDFStub,
			fields: map[string]any{"state": "OH", "expiry": "2027-01-01", "qty": "a dozen"},
			msg:    "whole number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.source, tt.fields)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			assert.Contains(t, dErrors.MessageOf(err), tt.msg)
		})
	}
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceManual, s)

	s, err = ParseSource("PDF_STUB")
	require.NoError(t, err)
	assert.Equal(t, SourcePDFStub, s)

	_, err = ParseSource("ocr")
	require.Error(t, err)
}
