package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"compliancelab/internal/audit"
	"compliancelab/internal/decision"
	decisionhandler "compliancelab/internal/decision/handler"
	decisionmetrics "compliancelab/internal/decision/metrics"
	httpapi "compliancelab/internal/http"
	"compliancelab/internal/intake"
	"compliancelab/internal/platform/config"
	"compliancelab/internal/platform/httpserver"
	"compliancelab/internal/platform/logger"
	"compliancelab/internal/platform/metrics"
	"compliancelab/internal/platform/postgres"
	"compliancelab/internal/platform/redis"
	"compliancelab/internal/regulatory"
	regulatoryhandler "compliancelab/internal/regulatory/handler"
	submissionhandler "compliancelab/internal/submission/handler"
	submissionmetrics "compliancelab/internal/submission/metrics"
	submissionservice "compliancelab/internal/submission/service"
	"compliancelab/internal/submission/store"
	"compliancelab/internal/trace"
	tracehandler "compliancelab/internal/trace/handler"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rules, err := loadRules(cfg.Decision.RulesFile)
	if err != nil {
		return err
	}
	retriever, err := loadSnippets(cfg.Decision.SnippetsFile)
	if err != nil {
		return err
	}
	normalizer, err := intake.NewNormalizer()
	if err != nil {
		return fmt.Errorf("load intake schema: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	auditLog := audit.NewPublisher(audit.NewInMemoryStore())
	auditor := audit.Emitter(auditLog)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := audit.DialKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		worker := audit.NewWorker(kafka, cfg.Kafka.AuditBuffer, log)
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		auditor = audit.Fanout{auditLog, worker}
		log.Info("audit events mirrored to kafka", "topic", cfg.Kafka.AuditTopic, "brokers", cfg.Kafka.Brokers)
	}

	engine := decision.NewEngine(rules,
		decision.WithNearExpiryWindow(cfg.Decision.NearExpiryWindowDays),
		decision.WithStrictJurisdictions(cfg.Decision.StrictJurisdictions),
	)
	decisions := decision.NewService(engine, retriever,
		decision.WithAuditor(auditor),
		decision.WithMetrics(decisionmetrics.New(reg)),
		decision.WithLogger(log),
	)

	traces := trace.NewService(trace.NewInMemoryStore(), decisions,
		trace.WithAuditor(auditor),
		trace.WithLogger(log),
	)

	checks := map[string]httpapi.HealthCheck{}
	subStore, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	submissions := submissionservice.New(subStore, decisions,
		submissionservice.WithTraceRecorder(traces),
		submissionservice.WithAuditPublisher(auditor),
		submissionservice.WithMetrics(submissionmetrics.New(reg)),
		submissionservice.WithLogger(log),
		submissionservice.WithTransitionEnforcement(cfg.Submission.EnforceStatusTransitions),
	)
	traces.SetSubmissionLookup(submissions)

	router := httpapi.NewRouter(httpapi.Options{
		Logger:         log,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthChecks:   checks,
	},
		decisionhandler.New(decisions, normalizer, traces, log),
		regulatoryhandler.New(retriever, log),
		tracehandler.New(traces, log),
		submissionhandler.New(submissions, log),
	)

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)
	g.Go(func() error {
		log.Info("starting compliancelab", "addr", cfg.Server.Addr, "store", cfg.Submission.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func loadRules(path string) (*decision.RuleTable, error) {
	if path == "" {
		return decision.DefaultRules()
	}
	return decision.LoadRulesFile(path)
}

func loadSnippets(path string) (*regulatory.Retriever, error) {
	if path == "" {
		return regulatory.LoadDefault()
	}
	return regulatory.LoadFile(path)
}

// openStore builds the configured submission store and registers its health
// check. The returned func releases any connection the store holds.
func openStore(ctx context.Context, cfg *config.Config, checks map[string]httpapi.HealthCheck) (submissionservice.Store, func(), error) {
	switch cfg.Submission.Store {
	case config.StoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		checks["redis"] = client.Health
		return store.NewRedis(client.Client), func() { _ = client.Close() }, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure submission schema: %w", err)
		}
		checks["postgres"] = db.PingContext
		return pg, func() { _ = db.Close() }, nil
	default:
		return store.NewInMemory(), func() {}, nil
	}
}
