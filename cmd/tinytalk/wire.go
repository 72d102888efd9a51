package main

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/cache"
	"github.com/fathima-sithara/tinytalk/internal/config"
	service "github.com/fathima-sithara/tinytalk/internal/services"
	"github.com/fathima-sithara/tinytalk/internal/storage"
	"github.com/fathima-sithara/tinytalk/internal/themes"
	"github.com/fathima-sithara/tinytalk/internal/utils"
	"github.com/fathima-sithara/tinytalk/internal/week"
)

// closers run in reverse order on shutdown.
type closers []func(context.Context)

func (cs closers) run(ctx context.Context) {
	for i := len(cs) - 1; i >= 0; i-- {
		cs[i](ctx)
	}
}

func setup(cfgPath string) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Development(), cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (storage.Store, closers, error) {
	var cs closers
	var store storage.Store
	switch cfg.Storage.Backend {
	case "s3":
		s, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:     cfg.AWS.Region,
			Bucket:     cfg.AWS.Bucket,
			Endpoint:   cfg.AWS.Endpoint,
			PublicRead: cfg.S3.PublicRead,
			PresignTTL: cfg.PresignTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 init: %w", err)
		}
		store = s
	case "gridfs":
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mc, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := mc.Ping(cctx, nil); err != nil {
			_ = mc.Disconnect(ctx)
			return nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		cs = append(cs, func(ctx context.Context) { _ = mc.Disconnect(ctx) })
		s, err := storage.NewGridFSStore(mc.Database(cfg.Mongo.Database), cfg.Mongo.Bucket, cfg.Storage.URLPrefix, logger)
		if err != nil {
			cs.run(ctx)
			return nil, nil, fmt.Errorf("gridfs init: %w", err)
		}
		store = s
	default:
		s, err := storage.NewLocalStore(cfg.Storage.Root, cfg.Storage.URLPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("fs store init: %w", err)
		}
		store = s
	}
	logger.Infof("storage backend %s ready", cfg.Storage.Backend)
	return storage.WithBreaker(store, storage.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
	}, logger), cs, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (service.Cache, closers) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory(), nil
	}
	r, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warnf("redis unavailable, using in-process cache: %v", err)
		return cache.NewMemory(), nil
	}
	return r, closers{func(context.Context) { _ = r.Close() }}
}

func buildService(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*service.MediaService, closers, error) {
	store, cs, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	c, cacheClosers := openCache(ctx, cfg, logger)
	cs = append(cs, cacheClosers...)
	svc := service.NewMediaService(store, service.Options{
		Calendar:       week.NewCalendar(cfg.Location),
		Catalog:        themes.Default(),
		Cache:          c,
		CacheTTL:       cfg.ListingTTL,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Logger:         logger,
	})
	return svc, cs, nil
}
