package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliancelab/internal/decision"
	"compliancelab/internal/decision/handler/mocks"
	"compliancelab/internal/expiry"
	"compliancelab/internal/intake"
	"compliancelab/internal/trace"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,TraceRecorder
type DecisionHandlerSuite struct {
	suite.Suite
	router  http.Handler
	service *mocks.MockService
	traces  *mocks.MockTraceRecorder
}

func TestDecisionHandlerSuite(t *testing.T) {
	suite.Run(t, new(DecisionHandlerSuite))
}

func (s *DecisionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.traces = mocks.NewMockTraceRecorder(ctrl)

	normalizer, err := intake.NewNormalizer()
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, normalizer, s.traces, logger).Register(r)
	s.router = r
}

func sampleVerdict() *decision.Verdict {
	return &decision.Verdict{
		AllowCheckout:        true,
		Status:               expiry.StatusNearExpiry,
		DaysToExpiry:         7,
		State:                "OH",
		LicenseID:            "TDDD-1",
		AttestationsRequired: []decision.Attestation{},
		Reasons:              []decision.Reason{decision.ReasonNearExpiry},
		ReferenceDate:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func assignTraceID(id string) func(context.Context, *trace.Record) error {
	return func(_ context.Context, rec *trace.Record) error {
		rec.TraceID = id
		return nil
	}
}

func (s *DecisionHandlerSuite) TestEvaluate() {
	s.Run("returns verdict with trace id", func() {
		want := decision.LicenseRequest{
			PracticeType:   "Practitioner",
			State:          "OH",
			StatePermit:    "TDDD-1",
			StateExpiry:    time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
			PurchaseIntent: "GeneralMedicalUse",
			Quantity:       3,
		}
		s.service.EXPECT().Evaluate(gomock.Any(), want).Return(sampleVerdict(), nil)
		s.traces.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(assignTraceID("trace-1"))

		body := map[string]any{
			"practice_type":   "Practitioner",
			"state":           "oh",
			"state_permit":    "TDDD-1",
			"state_expiry":    "2026-03-08",
			"purchase_intent": "GeneralMedicalUse",
			"quantity":        3,
		}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/decisions/evaluate", body))
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[VerdictResponse](s.T(), rr)
		s.True(resp.AllowCheckout)
		s.Equal("near_expiry", resp.Status)
		s.Equal("needs_review", resp.DecisionStatus)
		s.Equal("medium", resp.RiskLevel)
		s.Equal("trace-1", resp.TraceID)
		s.Equal("2026-03-01", resp.ReferenceDate)
	})

	s.Run("trace failure still returns the verdict", func() {
		s.service.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(sampleVerdict(), nil)
		s.traces.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("store down"))

		body := map[string]any{"state": "OH", "state_expiry": "2026-03-08"}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/decisions/evaluate", body))
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[VerdictResponse](s.T(), rr)
		s.Empty(resp.TraceID)
	})

	s.Run("engine rejection is 422", func() {
		s.service.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidInput, "quantity must be non-negative"))

		body := map[string]any{"state": "OH", "state_expiry": "2026-03-08", "quantity": -1}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/decisions/evaluate", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_input")
	})
}

func (s *DecisionHandlerSuite) TestEvaluateRejectsBadRequests() {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"state":`, http.StatusBadRequest, "bad_request"},
		{"missing state", `{"state_expiry":"2026-01-01"}`, http.StatusBadRequest, "validation_error"},
		{"long state", `{"state":"OHIO","state_expiry":"2026-01-01"}`, http.StatusBadRequest, "validation_error"},
		{"missing expiry", `{"state":"OH"}`, http.StatusBadRequest, "validation_error"},
		{"unparseable expiry", `{"state":"OH","state_expiry":"01/02/2026"}`, http.StatusUnprocessableEntity, "invalid_input"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/decisions/evaluate", tt.body))
			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *DecisionHandlerSuite) TestNormalize() {
	s.Run("normalizes without evaluating", func() {
		body := map[string]any{
			"source": "pdf_stub",
			"fields": map[string]any{"License State": "nj", "Expiration Date": "12/31/2026", "Qty": "20"},
		}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/intake/normalize", body))
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[NormalizeResponse](s.T(), rr)
		s.Equal("pdf_stub", resp.Source)
		s.Equal("NJ", resp.Request.State)
		s.Equal("2026-12-31", resp.Request.StateExpiry)
		s.Equal(20, resp.Request.Quantity)
		s.Nil(resp.Verdict)
	})

	s.Run("evaluates and records an intake trace", func() {
		s.service.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(sampleVerdict(), nil)
		s.traces.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec *trace.Record) error {
			s.Equal(trace.SourceIntakeManual, rec.Source)
			rec.TraceID = "trace-intake"
			return nil
		})

		body := map[string]any{
			"evaluate": true,
			"fields":   map[string]any{"state": "OH", "state_expiry": "2026-03-08"},
		}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/intake/normalize", body))
		testutil.AssertStatusOK(s.T(), rr)

		resp := testutil.UnmarshalResponse[NormalizeResponse](s.T(), rr)
		s.Require().NotNil(resp.Verdict)
		s.Equal("trace-intake", resp.Verdict.TraceID)
	})

	s.Run("schema violation is 422", func() {
		body := map[string]any{"fields": map[string]any{"state": "OH"}}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/intake/normalize", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_input")
	})

	s.Run("unknown source is rejected", func() {
		body := map[string]any{"source": "ocr", "fields": map[string]any{"state": "OH"}}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/intake/normalize", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}
