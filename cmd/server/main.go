// Package main runs the coaching platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerwise/coaching-backend/config"
	"github.com/ledgerwise/coaching-backend/internal/auth"
	"github.com/ledgerwise/coaching-backend/internal/booking"
	"github.com/ledgerwise/coaching-backend/internal/finance"
	"github.com/ledgerwise/coaching-backend/internal/gateway"
	"github.com/ledgerwise/coaching-backend/internal/meeting"
	"github.com/ledgerwise/coaching-backend/internal/middleware"
	"github.com/ledgerwise/coaching-backend/internal/models"
	"github.com/ledgerwise/coaching-backend/internal/organizations"
	"github.com/ledgerwise/coaching-backend/pkg/database"
	"github.com/ledgerwise/coaching-backend/pkg/logger"
	"github.com/ledgerwise/coaching-backend/pkg/metrics"
	"github.com/ledgerwise/coaching-backend/pkg/queue"
	"github.com/ledgerwise/coaching-backend/pkg/redis"
	"github.com/ledgerwise/coaching-backend/pkg/response"
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

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	gw := gateway.New(pool, log, m)
	jobQueue := queue.NewQueue(rdb.Client, log)

	var rooms meeting.Reserver = meeting.Noop{}
	if cfg.Zego.Enabled() {
		z, err := meeting.NewZego(cfg.Zego.AppID, cfg.Zego.ServerSecret, cfg.Zego.TokenGrace, log)
		if err != nil {
			log.Fatal("zego", zap.Error(err))
		}
		rooms = z
	} else {
		log.Warn("ZEGO_APP_ID not set; bookings get no meeting tokens")
	}

	tr := booking.NewTransactor(
		booking.NewPostgresStore(pool, gw),
		rooms,
		jobQueue,
		booking.Config{
			LockTimeout:   cfg.Booking.LockTimeout,
			TxTimeout:     cfg.Booking.TxTimeout,
			NotifyTimeout: cfg.Booking.NotifyTimeout,
			SlotLength:    cfg.Booking.SlotLength,
		},
		log,
		booking.WithMetrics(m),
	)

	validator := auth.NewValidator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Leeway)
	identities := auth.NewRepository(pool)

	bookingHandler := booking.NewHandler(tr, gw, log)
	financeHandler := finance.NewHandler(gw, log)
	orgHandler := organizations.NewHandler(gw, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(log))
	if m != nil {
		router.Use(m.Middleware())
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(hctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(hctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.Authenticate(validator, identities, log))
	bookingHandler.Register(api)
	financeHandler.Register(api)
	orgHandler.Register(api.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleHR, models.RoleEmployee)))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
