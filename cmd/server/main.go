package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	docs "tradebridge/docs"
	"tradebridge/internal/application/pipeline"
	"tradebridge/internal/application/service/ingest"
	"tradebridge/internal/config"
	"tradebridge/internal/infrastructure/archive"
	"tradebridge/internal/infrastructure/broker"
	"tradebridge/internal/infrastructure/cache"
	infrahttp "tradebridge/internal/interfaces/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	opts := pipeline.Options{}

	var archiveRepo *archive.Repository
	if cfg.Postgres.DSN != "" {
		archiveRepo, err = archive.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatalf("failed to init result archive: %v", err)
		}
		defer archiveRepo.Close()
		opts.Archive = archive.NewWriter(archive.BatchConfig{
			Size:    cfg.Postgres.BatchSize,
			Timeout: cfg.Postgres.BatchTimeout,
		}, archiveRepo, logger)
	}

	var redisClient *redis.Client
	recordTTL := time.Duration(cfg.Cache.RecordTTLSeconds) * time.Second
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		opts.Mirror = cache.NewRecordMirror(redisClient, recordTTL)
	}

	if cfg.RabbitMQ.URL != "" {
		opts.Feeds = append(opts.Feeds, func(router *ingest.Router) (pipeline.Feed, error) {
			consumer, err := broker.NewConsumer(cfg.RabbitMQ, router, logger)
			if err != nil {
				return nil, err
			}
			return consumer, nil
		})
	}

	p, err := pipeline.New(cfg, opts, logger)
	if err != nil {
		logger.Fatalf("failed to build pipeline: %v", err)
	}

	deps := infrahttp.Deps{
		Router:      p.Router(),
		Records:     p.Normalizer(),
		Status:      p,
		Subscribers: p.Hub(),
		Mirror:      opts.Mirror,
		Cache:       redisClient,
		CacheTTL:    recordTTL,
	}
	if archiveRepo != nil {
		deps.Archive = archiveRepo
	}
	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: infrahttp.NewHandler(deps),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := p.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := p.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped with error: %v", err)
		return
	}
	logger.Info("server stopped")
}
