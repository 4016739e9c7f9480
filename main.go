package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bookingcore/internal/cache"
	intconfig "bookingcore/internal/config"
	intdb "bookingcore/internal/db"
	"bookingcore/internal/events"
	"bookingcore/internal/gateway"
	router "bookingcore/internal/http"
	"bookingcore/internal/http/handlers"
	"bookingcore/internal/jobs"
	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
	"bookingcore/internal/repositories"
	"bookingcore/internal/services"
)

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	log := logger.New(env.LogLevel)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("bookingcore", reg)

	deps := services.Deps{
		Log:             log,
		Metrics:         m,
		ConflictRetries: env.StoreRetryAttempts,
	}

	var ping func(c *gin.Context) error
	if env.DBDSN != "" {
		db, err := intconfig.OpenDB(ctx, env.DBDSN)
		if err != nil {
			log.Fatal("database connection failed", "error", err)
		}
		defer db.Close()
		if err := intdb.EnsureSchema(ctx, db); err != nil {
			log.Fatal("schema setup failed", "error", err)
		}
		repo := repositories.NewBookingRepository(db, env.StoreRetryAttempts)
		deps.Store = repo
		deps.Audit = repo.AuditTrail()
		ping = func(c *gin.Context) error { return db.PingContext(c.Request.Context()) }
		log.Info("mysql store ready")
	} else {
		mem := repositories.NewMemoryStore()
		deps.Store = mem
		deps.Audit = mem
		log.Warn("DB_DSN not set, bookings are kept in memory only")
	}

	if env.GatewayBaseURL != "" {
		deps.Gateway = gateway.NewClient(env.GatewayBaseURL, env.GatewayAPIKey, env.GatewayTimeout)
	}

	if env.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, env.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, running without view cache", "error", err)
		} else {
			defer rdb.Close()
			deps.Cache = cache.NewBookingViews(rdb, env.CacheTTL)
		}
	}

	if len(env.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(env.KafkaBrokers, env.KafkaTopic)
		if err != nil {
			log.Warn("kafka unavailable, booking events disabled", "error", err)
		} else {
			defer pub.Close()
			deps.Events = pub
		}
	}

	if deps.Gateway != nil {
		sched, err := jobs.StartRefundPolling(ctx, services.NewRefundPoller(deps, 50), env.RefundPollInterval, log)
		if err != nil {
			log.Fatal("refund poller failed to start", "error", err)
		}
		defer func() { _ = sched.Shutdown() }()
	}

	hd := handlers.New(deps, log, env.GatewayWebhookSecret)
	hd.Ping = ping
	r := router.NewRouter(router.Options{
		Env:      env,
		Log:      log,
		Metrics:  m,
		Gatherer: reg,
		Handler:  hd,
	})

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
		return
	}
	log.Info("server stopped")
}
