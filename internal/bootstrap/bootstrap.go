package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/facturasend-workflow/internal/config"
	"github.com/kirillkom/facturasend-workflow/internal/core/ports"
	"github.com/kirillkom/facturasend-workflow/internal/core/usecase"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/erp/frappe"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/resilience"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/storage/kudefs"
	"github.com/kirillkom/facturasend-workflow/internal/observability/metrics"
)

// KudePublicPath is where the API serves materialized KUDE files.
const KudePublicPath = "/v1/kude/files/"

// SubmissionTimeout bounds one queued batch: submission, settle delay and
// KUDE lookup.
func SubmissionTimeout(cfg config.Config) time.Duration {
	return 2*cfg.ERPTimeout + cfg.KudeSettleDelay + 30*time.Second
}

type Options struct {
	// Service labels logs, events and metrics.
	Service string
	// Registerer receives the workflow metrics; nil disables them.
	Registerer prometheus.Registerer
}

type App struct {
	Config config.Config

	Submissions *usecase.SubmissionUseCase
	Kude        *usecase.KudeUseCase
	Queue       *usecase.QueueUseCase
	KudeFiles   ports.KudeFiles
	// SubmissionQueue is nil when NATS_URL is empty.
	SubmissionQueue ports.SubmissionQueue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, options Options) (*App, error) {
	var observer ports.WorkflowObserver
	var workflowMetrics *metrics.WorkflowMetrics
	if options.Registerer != nil {
		workflowMetrics = metrics.NewWorkflowMetrics(options.Service, options.Registerer)
		observer = workflowMetrics
	}

	resilienceCfg := resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
	if workflowMetrics != nil {
		resilienceCfg.OnStateChange = workflowMetrics.ObserveBreakerState
	}
	executor := resilience.NewExecutor(resilienceCfg)

	backend := frappe.New(cfg.ERPBaseURL, frappe.Options{
		APIKey:             cfg.ERPAPIKey,
		APISecret:          cfg.ERPAPISecret,
		Timeout:            cfg.ERPTimeout,
		ResilienceExecutor: executor,
	})

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	journal := postgres.NewSubmissionRepository(db)
	if err := journal.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	files, err := kudefs.New(cfg.KudeDir, kudefs.Options{PublicPath: KudePublicPath})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init kude storage: %w", err)
	}

	submissionOpts := usecase.SubmissionOptions{
		SettleDelay: cfg.KudeSettleDelay,
		Journal:     journal,
		Observer:    observer,
	}

	var queue *nats.Queue
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			OutcomeSubject:     cfg.NATSOutcomeSubject,
			Source:             "facturasend-workflow/" + options.Service,
			DrainTimeout:       SubmissionTimeout(cfg),
			ResilienceExecutor: executor,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		submissionOpts.Events = queue
	} else {
		slog.Warn("nats_disabled", "reason", "NATS_URL is empty")
	}

	kudeUC := usecase.NewKudeUseCase(backend, files, observer)
	app := &App{
		Config:      cfg,
		Submissions: usecase.NewSubmissionUseCase(backend, kudeUC, submissionOpts),
		Kude:        kudeUC,
		Queue:       usecase.NewQueueUseCase(backend, journal),
		KudeFiles:   files,
		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			_ = db.Close()
		},
	}
	if queue != nil {
		app.SubmissionQueue = queue
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
