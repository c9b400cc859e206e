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

	httpadapter "github.com/kirillkom/facturasend-workflow/internal/adapters/http"
	"github.com/kirillkom/facturasend-workflow/internal/bootstrap"
	"github.com/kirillkom/facturasend-workflow/internal/config"
	"github.com/kirillkom/facturasend-workflow/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/facturasend-workflow/internal/observability/logging"
	"github.com/kirillkom/facturasend-workflow/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "api", Registerer: httpMetrics.Registerer()})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	handler, err := httpadapter.NewRouter(httpadapter.Dependencies{
		Batches:     app.Submissions,
		Documents:   app.Submissions,
		Kude:        app.Kude,
		Queue:       app.Queue,
		KudeFiles:   app.KudeFiles,
		Submissions: app.SubmissionQueue,
		Export:      xlsx.WritePending,
		Metrics:     httpMetrics,
	}, httpadapter.Options{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		BackpressureWait: cfg.APIBackpressureWait,
	}).Handler()
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	// Submissions with a tracking-code follow-up wait for the settle delay
	// before answering, so the write timeout leaves room for it.
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.ERPTimeout + cfg.KudeSettleDelay + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
