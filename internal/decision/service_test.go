package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"compliancelab/internal/audit"
	"compliancelab/internal/decision/metrics"
	"compliancelab/internal/regulatory"
	dErrors "compliancelab/pkg/domain-errors"
	"compliancelab/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	service *Service
	audit   *audit.InMemoryStore
	metrics *metrics.Metrics
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	rt, err := DefaultRules()
	s.Require().NoError(err)

	retriever := regulatory.NewRetriever([]regulatory.Snippet{
		{Jurisdiction: "OH", Topic: "tddd", Text: "ohio tddd", Source: "ORC"},
		{Jurisdiction: "FEDERAL", Topic: "expiry", Text: "renew before expiry", Source: "DEA"},
		{Jurisdiction: "FEDERAL", Topic: "controlled_substances", Text: "dea registration", Source: "CFR"},
	})
	s.audit = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = NewService(NewEngine(rt), retriever,
		WithAuditor(audit.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
	)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), today), "req-1")
}

func (s *ServiceSuite) TestRegulatoryContext() {
	s.Run("active license gets only state snippets", func() {
		v, err := s.service.Evaluate(s.ctx, baseRequest())
		s.Require().NoError(err)
		s.Require().Len(v.RegulatoryContext, 1)
		s.Equal("ohio tddd", v.RegulatoryContext[0].Text)
	})

	s.Run("near expiry adds the federal expiry excerpt", func() {
		req := baseRequest()
		req.StateExpiry = today.AddDate(0, 0, 3)
		v, err := s.service.Evaluate(s.ctx, req)
		s.Require().NoError(err)
		s.Require().Len(v.RegulatoryContext, 2)
		s.Equal("renew before expiry", v.RegulatoryContext[1].Text)
	})

	s.Run("attestations add the controlled substance excerpt", func() {
		req := baseRequest()
		req.PurchaseIntent = "ControlledSubstanceUse"
		v, err := s.service.Evaluate(s.ctx, req)
		s.Require().NoError(err)
		s.Require().Len(v.RegulatoryContext, 2)
		s.Equal("dea registration", v.RegulatoryContext[1].Text)
	})

	s.Run("unknown state yields empty context, not nil", func() {
		req := baseRequest()
		req.State = "WY"
		v, err := s.service.Evaluate(s.ctx, req)
		s.Require().NoError(err)
		s.NotNil(v.RegulatoryContext)
		s.Empty(v.RegulatoryContext)
	})
}

func (s *ServiceSuite) TestUsesRequestClock() {
	req := baseRequest()
	req.StateExpiry = today.AddDate(0, 0, -1)

	v, err := s.service.Evaluate(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(-1, v.DaysToExpiry)

	later := requestcontext.WithTime(context.Background(), today.AddDate(0, 0, -10))
	v, err = s.service.Evaluate(later, req)
	s.Require().NoError(err)
	s.Equal(9, v.DaysToExpiry)
}

func (s *ServiceSuite) TestAuditAndMetrics() {
	req := baseRequest()
	req.PurchaseIntent = "Testosterone"
	req.Quantity = 2

	_, err := s.service.Evaluate(s.ctx, req)
	s.Require().NoError(err)

	events, err := s.audit.ListRecent(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionDecisionEvaluated, events[0].Action)
	s.Equal(string(DecisionBlocked), events[0].Decision)
	s.Equal("req-1", events[0].RequestID)
	s.Contains(events[0].Reason, string(ReasonUnderThreshold))

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Verdicts.WithLabelValues("active", "false")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.BlockingRules.WithLabelValues("testosterone-under-threshold")))
}

func (s *ServiceSuite) TestRejectedRequest() {
	req := baseRequest()
	req.Quantity = -4

	v, err := s.service.Evaluate(s.ctx, req)
	s.Require().Error(err)
	s.Nil(v)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Rejected))

	events, err := s.audit.ListRecent(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(events)
}

type brokenAuditor struct{}

func (brokenAuditor) Emit(context.Context, audit.Event) error { return errors.New("sink down") }

func (s *ServiceSuite) TestAuditFailureDoesNotFailEvaluation() {
	rt, err := DefaultRules()
	s.Require().NoError(err)
	svc := NewService(NewEngine(rt), nil, WithAuditor(brokenAuditor{}))

	v, err := svc.Evaluate(s.ctx, baseRequest())
	s.Require().NoError(err)
	s.True(v.AllowCheckout)
	s.Empty(v.RegulatoryContext)
}
