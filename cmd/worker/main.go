package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
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

	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.SQSQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

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

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// health server (liveness + readiness)
	healthMux := httpapi.New().Mux
	healthMux.HandleFunc("/healthz", httpapi.Healthz())
	healthMux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.SQSQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(healthMux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL)
		pollErrCh <- consumer.Poll(ctx, func(ctx context.Context, job sqsqueue.DispatchJob) error {
			start := time.Now()
			slog.Info("dispatch job start", "triggered_by", job.TriggeredBy, "source", job.Source)
			summary, err := orch.Run(ctx, time.Now(), dispatch.RunOptions{
				TriggeredBy: job.TriggeredBy,
				Source:      job.Source,
			})
			if err != nil {
				slog.Error("dispatch job failed",
					"run_id", summary.RunID,
					"duration", time.Since(start),
					"err", err,
				)
				return err
			}
			slog.Info("dispatch job finish",
				"run_id", summary.RunID,
				"status", summary.Status,
				"duration", time.Since(start),
				"processed", summary.Results.Processed,
				"failed", summary.Results.Failed,
			)
			return nil
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
}
