package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/facturasend-workflow/internal/bootstrap"
	"github.com/kirillkom/facturasend-workflow/internal/config"
	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
	"github.com/kirillkom/facturasend-workflow/internal/observability/logging"
	"github.com/kirillkom/facturasend-workflow/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: service, Registerer: workerMetrics.Registerer()})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.SubmissionQueue == nil {
		slog.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	handleTimeout := bootstrap.SubmissionTimeout(cfg)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
		return app.SubmissionQueue.SubscribeSubmissionRequests(groupCtx, func(handlerCtx context.Context, request domain.SubmissionRequest) error {
			start := time.Now()
			workerMetrics.StartBatch(request, start)

			submitCtx, cancel := context.WithTimeout(handlerCtx, handleTimeout)
			defer cancel()
			outcome, err := app.Submissions.SubmitBatch(submitCtx, request.Documents)
			result := workerMetrics.FinishBatch(time.Since(start), outcome, err)
			if err != nil {
				return err
			}
			slog.Info("queued_batch_done",
				"request_id", request.RequestID,
				"requested_by", request.RequestedBy,
				"outcome_id", outcome.ID,
				"result", result,
			)
			return nil
		})
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}
