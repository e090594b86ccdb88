package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/aamritt0/calendar-backend/internal/api"
	"github.com/aamritt0/calendar-backend/internal/config"
	"github.com/aamritt0/calendar-backend/internal/feed"
	"github.com/aamritt0/calendar-backend/internal/httpx"
	"github.com/aamritt0/calendar-backend/internal/ics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize OpenTelemetry
	meterProvider, _, err := httpx.SetupPrometheusExporter()
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpx.Shutdown(shutdownCtx, meterProvider); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	otel.SetMeterProvider(meterProvider)
	slog.Info("OpenTelemetry initialized", "metrics_endpoint", "/metrics")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Warn("Unknown serving timezone, falling back to local", "timezone", cfg.Timezone, "error", err)
		loc = time.Local
	}

	// Initialize the ingestion pipeline
	loader := &feed.FeedLoader{
		URL:     cfg.FeedURL,
		Fetcher: ics.NewFetcher(ics.DefaultStrategies()),
		Parser:  &ics.Parser{Zones: ics.FixedZoneResolver{}},
	}
	cache := feed.NewCache(loader, time.Duration(cfg.FreshFor), time.Duration(cfg.StaleFor))
	service := feed.NewService(cache, loc, cfg.IncludeToday)

	// Initialize telemetry
	telemetry, err := httpx.NewTelemetry()
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	// Configure handler
	handler := mux.NewRouter()
	handler.Use(
		telemetry.Middleware,
		httpx.Logger(),
		httpx.Recovery(),
	)

	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "calendar-backend is up")
	})

	// Use standard Prometheus HTTP handler
	handler.Handle("/metrics", promhttp.Handler())

	api.NewHandler(service).Register(handler)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting the server", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
