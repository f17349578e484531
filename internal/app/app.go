// Package app assembles the regression tester from configuration. Both binaries share it and
// differ only in the queue they plug in.
package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/invoice-rules/internal/cache"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/corpus"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/export"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/ingest"
	"github.com/joseph-ayodele/invoice-rules/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-rules/internal/metrics"
	"github.com/joseph-ayodele/invoice-rules/internal/ocr"
	"github.com/joseph-ayodele/invoice-rules/internal/recommend"
	"github.com/joseph-ayodele/invoice-rules/internal/regression"
	"github.com/joseph-ayodele/invoice-rules/internal/repository"
)

// App holds the wired components. Service and Exporter are nil until Attach is called.
type App struct {
	Tasks     repository.TaskRepository
	Details   repository.DetailRepository
	Documents repository.DocumentRepository
	Truth     repository.GroundTruthRepository
	Rules     repository.RuleRepository

	Cache    *cache.DocumentStore
	Metrics  *metrics.Handler
	Engine   *extract.Engine
	Executor *regression.Executor
	Cancels  *regression.Cancellations
	Loader   *ingest.Loader

	Service  *regression.Service
	Exporter *export.Service

	thresholds recommend.Thresholds
	selector   *corpus.Selector
	logger     *slog.Logger
}

// New wires everything below the queue. reg may be nil to skip metrics registration.
func New(cfg *common.Config, db *repository.DB, reg *prometheus.Registry, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Tasks:     repository.NewTaskRepository(db, logger),
		Details:   repository.NewDetailRepository(db, logger),
		Documents: repository.NewDocumentRepository(db, logger),
		Truth:     repository.NewGroundTruthRepository(db, logger),
		Rules:     repository.NewRuleRepository(db, logger),
		Cancels:   regression.NewCancellations(),
		logger:    logger,
	}
	a.thresholds = recommend.Thresholds{
		MaxRegressionRate:         cfg.Regression.MaxRegressionRate,
		MaxRegressionRateForAdopt: cfg.Regression.MaxRegressionRateForAdopt,
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Metrics = metrics.New(reg)
	a.Cache = cache.NewDocumentStore(a.Documents, cfg.Cache.DocumentTTL, cfg.Cache.CleanupInterval)
	a.selector = corpus.NewSelector(a.Documents, cfg.Regression.MaxDocuments)

	engineOpts := []extract.Option{
		extract.WithObserver(a.Metrics.ObserveExtraction),
		extract.WithAITimeout(cfg.LLM.Timeout),
		extract.WithLogger(logger),
	}
	if cfg.LLM.APIKey != "" {
		engineOpts = append(engineOpts, extract.WithCompleter(openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			Lenient:     true,
		}, logger)))
		logger.Info("model collaborator configured", "model", cfg.LLM.Model)
	} else {
		logger.Warn("OPENAI_API_KEY not configured, AI-assisted patterns will report no value")
	}
	a.Engine = extract.NewEngine(engineOpts...)

	runner := regression.NewRunner(a.Engine, a.Cache, a.Truth,
		regression.WithParallelism(cfg.Worker.Parallelism),
		regression.WithRunnerLogger(logger))
	a.Executor = regression.NewExecutor(a.Tasks, a.Details, a.selector, runner, a.Cancels, a.Metrics, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Binary,
		TesseractLang: cfg.OCR.Language,
		TessdataDir:   cfg.OCR.TessdataDir,
	}, logger)
	a.Loader = ingest.NewLoader(invalidatingSink{next: a.Documents, cache: a.Cache}, a.Truth, extractor, logger)
	return a
}

// Attach builds the service layer on top of queue.
func (a *App) Attach(queue regression.Queue) {
	a.Service = regression.NewService(regression.ServiceDeps{
		Tasks:      a.Tasks,
		Details:    a.Details,
		Rules:      a.Rules,
		Corpus:     a.selector,
		Documents:  a.Cache,
		Engine:     a.Engine,
		Queue:      queue,
		Cancels:    a.Cancels,
		Thresholds: a.thresholds,
		Logger:     a.logger,
	})
	a.Exporter = export.NewService(a.Service, a.thresholds, a.logger)
}

// invalidatingSink drops the cached view whenever a document is (re)loaded.
type invalidatingSink struct {
	next  ingest.DocumentSink
	cache *cache.DocumentStore
}

func (s invalidatingSink) Save(ctx context.Context, v *document.View) error {
	if err := s.next.Save(ctx, v); err != nil {
		return err
	}
	s.cache.Invalidate(v.ID)
	return nil
}
