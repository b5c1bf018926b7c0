// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianSentinel/pkg/logging"
	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/diagnosis"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
	"github.com/AleutianAI/AleutianSentinel/services/pipeline"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/observability"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/routes"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/telemetry"
	storagebadger "github.com/AleutianAI/AleutianSentinel/services/storage/badger"
)

// Service is the assembled sentinel: pipeline, graph, guardrail,
// memory, journal, and the HTTP boundary.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	logWrap *logging.Logger

	controller *pipeline.Controller
	graph      *causal.TemporalGraph
	guard      *guardrail.Guardrail
	watcher    *guardrail.PolicyWatcher
	store      memory.Store
	db         *storagebadger.DB
	journal    *audit.Journal
	exporter   *audit.Exporter
	sink       *InfluxSink
	pruner     *graphPruner

	router            *gin.Engine
	httpServer        *http.Server
	telemetryShutdown func(context.Context) error
}

// New wires every component. Weaviate is optional: when unreachable
// the service starts without incident memory and anomaly detection
// stays quiet. The journal, guardrail, graph and LLM are required.
func New(ctx context.Context, cfg Config) (*Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logWrap := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "sentinel",
		JSON:    cfg.JSONLogs,
		LogDir:  cfg.LogDir,
	})
	logger := logWrap.Slog()
	slog.SetDefault(logger)

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "sentinel",
		ServiceVersion: Version,
		Environment:    getEnvString("ALEUTIAN_ENV", "development"),
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	metrics := observability.InitMetrics()

	svc := &Service{
		cfg:               cfg,
		logger:            logger,
		logWrap:           logWrap,
		telemetryShutdown: telemetryShutdown,
	}

	svc.store = connectWeaviate(ctx, cfg.WeaviateURL, logger)

	badgerCfg := storagebadger.DefaultConfig()
	badgerCfg.Path = cfg.BadgerPath
	badgerCfg.InMemory = cfg.BadgerInMemory
	badgerCfg.Logger = logger
	svc.db, err = storagebadger.OpenDB(badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	svc.journal, err = audit.NewJournal(svc.db, logger)
	if err != nil {
		svc.db.Close()
		return nil, fmt.Errorf("open remediation journal: %w", err)
	}

	if cfg.GCSBucket != "" {
		svc.exporter, err = audit.NewExporter(ctx, cfg.GCSBucket, cfg.GCSKeyPath, logger)
		if err != nil {
			logger.Warn("audit export disabled", "bucket", cfg.GCSBucket, "error", err)
			svc.exporter = nil
		}
	}

	graphCfg := causal.DefaultGraphConfig()
	graphCfg.Logger = logger
	svc.graph = causal.NewTemporalGraph(graphCfg)

	svc.guard, svc.watcher = buildGuardrail(cfg.PolicyPath, logger)

	llmClient, err := buildLLMClient(cfg.LLMBackend)
	if err != nil {
		svc.db.Close()
		return nil, fmt.Errorf("init llm backend %q: %w", cfg.LLMBackend, err)
	}

	diagnostician, err := diagnosis.NewLLMDiagnostician(llmClient, diagnosis.DiagnosticianConfig{
		RequestsPerMinute: cfg.DiagnosisRPM,
		Logger:            logger,
	})
	if err != nil {
		svc.db.Close()
		return nil, fmt.Errorf("init diagnostician: %w", err)
	}

	if cfg.InfluxURL != "" {
		svc.sink = NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, logger)
	}

	var sink pipeline.StatsSink
	if svc.sink != nil {
		sink = svc.sink
	}
	svc.controller, err = pipeline.NewController(pipeline.Config{
		AnalysisInterval: cfg.AnalysisInterval.Std(),
		Logger:           logger,
		Metrics:          metrics,
	}, pipeline.Deps{
		Store:         svc.store,
		Graph:         svc.graph,
		Diagnostician: diagnostician,
		Guard:         svc.guard,
		Model:         causal.NewMeanDifferenceModel(),
		Journal:       svc.journal,
		Sink:          sink,
	})
	if err != nil {
		svc.db.Close()
		return nil, fmt.Errorf("init pipeline controller: %w", err)
	}

	svc.pruner = newGraphPruner(svc.graph, cfg.GraphPruneInterval.Std(), cfg.GraphMaxAge.Std(), logger)

	gin.SetMode(gin.ReleaseMode)
	svc.router = gin.New()
	svc.router.Use(gin.Recovery())
	svc.router.Use(otelgin.Middleware("sentinel"))
	routes.SetupRoutes(svc.router, handlers.Deps{
		Controller: svc.controller,
		Graph:      svc.graph,
		Guard:      svc.guard,
		Store:      svc.store,
		Journal:    svc.journal,
		Exporter:   svc.exporter,
		Logger:     logger,
	})

	return svc, nil
}

// connectWeaviate builds the incident store, or nil when the URL is
// absent or the instance unreachable. The sentinel runs either way.
func connectWeaviate(ctx context.Context, rawURL string, logger *slog.Logger) memory.Store {
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		logger.Info("WEAVIATE_SERVICE_URL not set, running without incident memory")
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		logger.Warn("weaviate URL is invalid, running without incident memory",
			"url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		logger.Warn("weaviate client creation failed, running without incident memory", "error", err)
		return nil
	}

	store, err := memory.NewWeaviateStore(ctx, client)
	if err != nil {
		logger.Warn("weaviate schema setup failed, running without incident memory", "error", err)
		return nil
	}
	logger.Info("incident memory connected", "host", parsed.Host)
	return store
}

// buildGuardrail loads the policy file when configured, falling back
// to the built-in policy, and attaches a hot-reload watcher to file
// backed policies.
func buildGuardrail(policyPath string, logger *slog.Logger) (*guardrail.Guardrail, *guardrail.PolicyWatcher) {
	if policyPath == "" {
		return guardrail.New(guardrail.DefaultPolicy()), nil
	}

	policy, err := guardrail.LoadPolicy(policyPath)
	if err != nil {
		logger.Warn("policy file unusable, using built-in policy",
			"path", policyPath, "error", err)
		policy = guardrail.DefaultPolicy()
	}
	rail := guardrail.New(policy)
	watcher := guardrail.NewPolicyWatcher(rail, policyPath, logger)
	return rail, watcher
}

func buildLLMClient(backend string) (llm.LLMClient, error) {
	switch backend {
	case "openai":
		return llm.NewOpenAIClient()
	case "ollama":
		return llm.NewOllamaClient()
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
}

// Run starts the pipeline, maintenance, and HTTP server, then blocks
// until the context is cancelled or the server fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.controller.Start(ctx); err != nil {
		return err
	}
	s.pruner.Start(ctx)
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Warn("policy watcher failed to start", "error", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sentinel listening", "port", s.cfg.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return s.Close()
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Close stops every component in reverse start order.
func (s *Service) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", "error", err)
		}
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.pruner.Stop()
	s.controller.Stop()

	if s.sink != nil {
		s.sink.Close()
	}
	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			s.logger.Warn("exporter close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("journal database close error", "error", err)
		}
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown error", "error", err)
		}
	}
	if s.logWrap != nil {
		s.logWrap.Close()
	}
	return nil
}
