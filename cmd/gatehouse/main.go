// Command gatehouse serves the authorization decision layer over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	migrate         = flag.Bool("migrate", true, "Apply database migrations on startup")
	replicaSchedule = flag.String("replica-check-schedule", "@every 30s", "Cron schedule for pruning unhealthy read replicas")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("gatehouse exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if *migrate {
		if err := postgres.Migrate(ctx, db.Primary()); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Using Redis for caches and rate limits")
	} else {
		logger.Warn("Redis not configured; caches and rate limits are per process")
	}

	registry, err := authz.LoadRegistryFile(cfg.Authorization.OperationsFile)
	if err != nil {
		return err
	}
	logger.WithField("operations", len(registry.Operations())).Info("Operation registry loaded")

	var (
		metrics        *observability.Metrics
		metricsHandler http.Handler
	)
	if cfg.Observability.MetricsEnabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(promRegistry)
		metricsHandler = observability.MetricsHandler(promRegistry)
	}

	svc, err := buildServices(cfg, db, redisClient, registry, metrics, logger)
	if err != nil {
		return err
	}

	c := cron.New()
	_, err = c.AddFunc(*replicaSchedule, func() {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
		defer cancel()
		if removed := db.RemoveUnhealthyReplicas(checkCtx); removed > 0 {
			logger.WithField("removed", removed).Warn("Removed unhealthy read replicas")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           newHealthRouter(observability.NewHealthChecker(db.Primary(), redisClient, cfg.Observability.OTel.ServiceVersion), metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		go func() {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range []*http.Server{apiServer, healthServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}
	return shutdownErr
}
