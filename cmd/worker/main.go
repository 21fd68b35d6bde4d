package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/studyloop/reminder-service/internal/config"
	"github.com/studyloop/reminder-service/internal/logger"
	"github.com/studyloop/reminder-service/internal/mailer"
	"github.com/studyloop/reminder-service/internal/queue"
	"github.com/studyloop/reminder-service/internal/store"
	"github.com/studyloop/reminder-service/internal/worker"
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

	q, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		log.Fatal("rabbitmq dial failed", zap.Error(err))
	}
	defer q.Close()
	if err := q.Setup(); err != nil {
		log.Fatal("rabbitmq setup failed", zap.Error(err))
	}

	w := worker.New(st, mailer.New(cfg.SMTP), q, log)
	if err := w.Run(ctx); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}
