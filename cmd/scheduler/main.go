package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parallon-labs/distjob-scheduler/config"
	"github.com/parallon-labs/distjob-scheduler/internal/health"
	"github.com/parallon-labs/distjob-scheduler/internal/httpjob"
	ctxlog "github.com/parallon-labs/distjob-scheduler/internal/log"
	"github.com/parallon-labs/distjob-scheduler/internal/metrics"
	"github.com/parallon-labs/distjob-scheduler/internal/notify"
	"github.com/parallon-labs/distjob-scheduler/internal/registry"
	"github.com/parallon-labs/distjob-scheduler/internal/scheduler"
	"github.com/parallon-labs/distjob-scheduler/internal/store/mongostore"
	httptransport "github.com/parallon-labs/distjob-scheduler/internal/transport/http"
	"github.com/parallon-labs/distjob-scheduler/internal/transport/http/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	client, st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, "jobs")
	if err != nil {
		stop()
		log.Fatalf("mongo: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := st.EnsureIndexes(ctx); err != nil {
		stop()
		log.Fatalf("ensure indexes: %v", err)
	}
	logger.Info("document store connected", "database", cfg.MongoDatabase)

	metrics.Register()
	checker := health.NewChecker(mongostore.NewPinger(client), logger, prometheus.DefaultRegisterer)

	reg := registry.New(
		cfg.LockDuration(),
		cfg.DefaultPriority,
		cfg.DefaultConcurrency,
		nil,
	)

	httpHandler := httpjob.New(logger)
	reg.Define(httpjob.TypeName, registry.Options{}, httpHandler.Handle)

	notifier := notify.New(cfg.Env, cfg.NotifyResendAPIKey, cfg.NotifyResendFrom, cfg.NotifyResendFrom, logger)

	sched := scheduler.New(reg, st, notifier, scheduler.Config{
		Concurrency: cfg.Concurrency,
		QueueDepth:  cfg.Concurrency * 2,
		IdleTime:    cfg.IdleTime(),
	}, logger)

	bootstrapJobs, err := cfg.BootstrapJobs()
	if err != nil {
		stop()
		log.Fatalf("bootstrap jobs: %v", err)
	}
	for _, job := range bootstrapJobs {
		id, err := sched.Schedule(ctx, scheduler.ScheduleInput{
			ExternalID:  job.ID,
			Type:        job.Type,
			Schedule:    job.Schedule,
			Priority:    job.Priority,
			Concurrency: job.Concurrency,
			Data:        job.Data,
			Immediate:   true,
		})
		if err != nil {
			logger.Error("bootstrap job schedule failed", "job_id", job.ID, "job_type", job.Type, "error", err)
			continue
		}
		logger.Info("bootstrap job scheduled", "job_id", id, "job_type", job.Type)
	}

	go sched.Start(ctx)
	logger.Info("scheduler started", "worker_id", sched.WorkerID(), "concurrency", cfg.Concurrency)

	jobHandler := handler.NewJobHandler(sched, logger)
	router := httptransport.NewRouter(jobHandler, checker, []byte(cfg.JWTSecret), logger)
	apiSrv := &http.Server{Addr: ":8080", Handler: router}
	go func() {
		logger.Info("control plane API started", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control plane API", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control plane API shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
