package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/cache"
	"github.com/studyloop/reminder-service/internal/config"
	"github.com/studyloop/reminder-service/internal/counter"
	"github.com/studyloop/reminder-service/internal/dispatch"
	"github.com/studyloop/reminder-service/internal/handlers"
	"github.com/studyloop/reminder-service/internal/jobs"
	"github.com/studyloop/reminder-service/internal/logger"
	"github.com/studyloop/reminder-service/internal/middleware"
	"github.com/studyloop/reminder-service/internal/queue"
	"github.com/studyloop/reminder-service/internal/scheduler"
	"github.com/studyloop/reminder-service/internal/store"
	redisinit "github.com/studyloop/reminder-service/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DB.Path)
	if err != nil {
		log.Fatal("open store failed", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	rdb, err := redisinit.Init(cfg.Redis)
	if err != nil {
		log.Fatal("redis init failed", zap.Error(err))
	}

	q, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		log.Fatal("rabbitmq dial failed", zap.Error(err))
	}
	defer q.Close()
	if err := q.Setup(); err != nil {
		log.Fatal("rabbitmq setup failed", zap.Error(err))
	}

	sched := scheduler.New(
		st,
		scheduler.NewActivityReader(st),
		scheduler.NewQuizReader(st),
		scheduler.NewTaskReader(st),
		scheduler.Config{
			LifeRefillWait:      cfg.Scheduling.LifeRefillWait,
			PassingThreshold:    cfg.Scheduling.PassingThreshold,
			MinInferenceSamples: cfg.Scheduling.MinInferenceSamples,
		},
		log,
	)
	counters := counter.New(rdb)
	disp := dispatch.New(st, q, counters, log, cfg.Scheduling.SweepBatch)

	retention := time.Duration(cfg.Scheduling.RetentionDays) * 24 * time.Hour
	runner, err := jobs.New(sched, disp, st, counters, retention, log)
	if err != nil {
		log.Fatal("cron setup failed", zap.Error(err))
	}
	runner.Start()
	defer runner.Stop()

	h := handlers.New(st, sched, cache.NewUnread(rdb), log)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.CorrelationID())
	r.GET("/health", handlers.Health)

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.Auth.JWTSecret))
	h.Routes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
