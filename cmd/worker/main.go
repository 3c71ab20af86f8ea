// Package main runs the booking notification relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/config"
	"github.com/ledgerwise/coaching-backend/internal/worker"
	"github.com/ledgerwise/coaching-backend/pkg/logger"
	"github.com/ledgerwise/coaching-backend/pkg/metrics"
	"github.com/ledgerwise/coaching-backend/pkg/queue"
	"github.com/ledgerwise/coaching-backend/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		// BLPOP waits up to 5s; keep the socket deadline above it.
		ReadTimeout: 10 * time.Second,
	}, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}
	if m != nil && cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener", zap.Error(err))
			}
		}()
	}

	jobQueue := queue.NewQueue(rdb.Client, log)
	relay := worker.NewRelay(jobQueue, worker.NewLogNotifier(log), m, log)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		relay.Run(workerCtx)
		close(done)
	}()
	log.Info("notification relay started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("relay did not stop in time")
	}
	log.Info("worker stopped")
}
