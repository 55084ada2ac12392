package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tanbih/internal/awsutil"
	"tanbih/internal/config"
	"tanbih/internal/dispatch"
	"tanbih/internal/httpapi"
	"tanbih/internal/httpserver"
	"tanbih/internal/logging"
	"tanbih/internal/observability"
	sqsqueue "tanbih/internal/queue/sqs"
	"tanbih/internal/schedule"
	"tanbih/internal/store/pg"
	"tanbih/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("api sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	st := pg.New(db)
	producer := &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}

	factory := &dispatch.Factory{
		Settings:         st,
		TelegramBotToken: cfg.TelegramBotToken,
		SendgridAPIKey:   cfg.SendgridAPIKey,
		HTTP:             &http.Client{Timeout: 12 * time.Second},
		TelegramLimiter:  rate.NewLimiter(rate.Limit(cfg.TelegramRPS), cfg.TelegramBurst),
		WhatsAppLimiter:  rate.NewLimiter(rate.Limit(cfg.WhatsAppRPS), cfg.WhatsAppBurst),
		TelegramBreaker:  newBreaker("telegram"),
		WhatsAppBreaker:  newBreaker("whatsapp"),
	}

	orch := &dispatch.Orchestrator{
		Store:      st,
		Scheduler:  &schedule.Scheduler{Store: st},
		Channels:   factory.Build,
		MaxPerDay:  cfg.MaxSendsPerDay,
		AppBaseURL: cfg.AppBaseURL,
		NewRunID:   util.NewRunID,
		NewLogID:   util.NewNotificationID,
	}

	s := httpserver.New()
	api := &httpserver.API{
		Dispatcher: orch,
		Runs:       st,
		Queue:      producer,
		Now:        time.Now,
	}
	api.Register(s.Mux)
	s.Mux.Use(
		httpserver.Metrics(observability.APIRequests),
		httpserver.SharedSecret(cfg.InternalSecret),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}

	ops := httpapi.New()
	ops.Mux.HandleFunc("/healthz", httpapi.Healthz())
	ops.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))
	opsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: ops.Mux}
	go func() {
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api ops server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = opsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
}
