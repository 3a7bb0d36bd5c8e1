package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Joffythetrophy/Casino-savings/internal/api"
	"github.com/Joffythetrophy/Casino-savings/internal/audit"
	"github.com/Joffythetrophy/Casino-savings/internal/cache"
	"github.com/Joffythetrophy/Casino-savings/internal/config"
	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/store"
	"github.com/Joffythetrophy/Casino-savings/internal/store/memstore"
	"github.com/Joffythetrophy/Casino-savings/internal/telemetry"
)

const serviceName = "casino-treasury"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	opts := []service.Option{
		service.WithVault(cfg.TreasuryVault),
		service.WithLogger(logger),
		service.WithTracerProvider(tp),
	}

	var st service.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = memstore.New()
		logger.Warn("using in-memory store; ledger is lost on exit")
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		st = store.New(pool)
	}

	var publishers audit.Multi
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))

		opts = append(opts, service.WithCache(cache.New(rdb, cfg.CacheTTL)))
		if cfg.AuditRedisChannel != "" {
			publishers = append(publishers, audit.NewRedisPublisher(rdb, cfg.AuditRedisChannel))
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		writer := audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer writer.Close()
		publishers = append(publishers, audit.NewKafkaPublisher(writer))
		logger.Info("kafka writer initialized",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}
	if len(publishers) > 0 {
		opts = append(opts, service.WithPublisher(publishers))
	}

	svc := service.New(st, opts...)
	srv := api.NewServer(svc, api.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer), logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{httpServer, metricsServer} {
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(sctx), metricsServer.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
