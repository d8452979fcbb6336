package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	harvester "github.com/iziplay/csw-harvester"
	routing "github.com/iziplay/csw-harvester/pkg/api"
	"github.com/iziplay/csw-harvester/pkg/config"
	"github.com/iziplay/csw-harvester/pkg/csw"
	"github.com/iziplay/csw-harvester/pkg/database"
	"github.com/iziplay/csw-harvester/pkg/harvest"
	"github.com/iziplay/csw-harvester/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"gorm.io/plugin/opentelemetry/tracing"
)

// setupTracing installs the OTLP tracer provider. Tracing stays disabled
// when no collector endpoint is configured.
func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName("csw-harvester"),
			),
		),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	return tp.Shutdown, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer shutdownTracing(context.Background())

	gw, err := database.Open(cfg.Postgres)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	if err := gw.DB().Use(tracing.NewPlugin()); err != nil {
		slog.Error("Failed to register tracing plugin", "error", err)
	}

	// master tables must exist before queues can be reset
	if err := gw.InitMaster(ctx); err != nil {
		slog.Error("Failed to initialize master tables", "error", err)
		os.Exit(1)
	}
	if err := gw.ResetQueues(ctx); err != nil {
		slog.Error("Failed to reset queues", "error", err)
		os.Exit(1)
	}

	client := csw.NewClient(csw.ClientOptions{RequestsPerSecond: cfg.Harvest.RequestsPerSecond})
	h := harvest.New(gw, client, harvest.Options{Workers: cfg.Harvest.Workers})

	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Server"},
		AllowCredentials: false,
	}))

	router.Handle("/metrics", metrics.Handler())

	apiConfig := huma.DefaultConfig("CSW Harvester", "1.0.0")
	apiConfig.OpenAPI.Info.Description = harvester.Readme
	apiConfig.OpenAPI.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	apiConfig.DocsPath = "/"
	apiConfig.Servers = []*huma.Server{
		{URL: cfg.API.Host},
	}
	api := humachi.New(router, apiConfig)

	routing.Setup(api, routing.Options{
		Gateway:    gw,
		Harvester:  h,
		JWTSecret:  cfg.JWTSecret,
		Background: ctx,
	})

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: otelhttp.NewHandler(router, "api"),
	}

	go func() {
		slog.Info("Starting server", "addr", cfg.API.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	if err := h.Schedule(ctx, cfg.Harvest.Interval); err != nil && ctx.Err() == nil {
		slog.Error("Scheduler stopped", "error", err)
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
