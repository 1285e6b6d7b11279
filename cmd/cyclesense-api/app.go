package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JonnyWalker81/cyclesense/backend/internal/config"
	"github.com/JonnyWalker81/cyclesense/backend/internal/dispatcher"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/internal/oracle"
	"github.com/JonnyWalker81/cyclesense/backend/internal/repository"
	"github.com/JonnyWalker81/cyclesense/backend/internal/service"
	"github.com/JonnyWalker81/cyclesense/backend/pkg/supabase"
)

// app holds the wired insight pipeline shared by serve and generate
type app struct {
	cfg        *config.Config
	log        logger.Logger
	supabase   *supabase.Client
	store      repository.BlobStore
	dispatcher *dispatcher.Dispatcher
	registry   *service.InsightRegistry
}

func newLogger(cfg config.LogConfig) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:   logger.ParseLevel(cfg.Level),
		Format:  cfg.Format,
		Backend: cfg.Backend,
	})
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.BlobStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return repository.NewSQLiteBlobStore(ctx, cfg.Path)
	case "redis":
		return repository.NewRedisBlobStore(ctx, repository.RedisOptions{
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			Prefix: cfg.RedisPrefix,
		})
	case "memory":
		return repository.NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	client := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)

	d := dispatcher.New(dispatcher.Config{
		MaxConcurrent: cfg.Dispatcher.MaxConcurrent,
		MaxPerWindow:  cfg.Dispatcher.MaxPerWindow,
		Window:        cfg.Dispatcher.Window,
		MaxQueue:      cfg.Dispatcher.MaxQueue,
		Name:          "insights",
	}, log)

	// A nil interface, not a nil *Client, keeps the remote strategy skipped
	var remote service.Oracle
	switch c, err := oracle.New(cfg.Oracle); {
	case errors.Is(err, oracle.ErrNotConfigured):
		log.Info("no oracle configured, remote insights disabled")
	case err != nil:
		d.Close()
		closeStore(store, log)
		return nil, err
	default:
		remote = c
		log.Info("oracle configured",
			logger.String("provider", cfg.Oracle.Provider),
			logger.String("model", cfg.Oracle.Model),
		)
	}

	engine := service.NewInsightEngine(d, remote, service.EngineConfig{
		OracleTimeout:       cfg.Oracle.Timeout,
		OracleMinInterval:   cfg.Oracle.MinInterval,
		EnhancedMinInterval: cfg.Engine.EnhancedMinInterval,
		SimulatedLatency:    cfg.Engine.SimulatedLatency,
	}, log)

	registry := service.NewInsightRegistry(service.ManagerDeps{
		Events:   repository.NewEventRepository(client),
		Store:    store,
		Feedback: repository.NewFeedbackRepository(client),
		Consent:  repository.NewConsentRepository(client),
		Engine:   engine,
	}, service.ManagerConfig{
		Retention:          cfg.Insights.Retention,
		RegenerateAfter:    cfg.Insights.RegenerateAfter,
		MinActive:          cfg.Insights.MinActive,
		DefaultMaxInsights: cfg.Engine.DefaultMaxInsights,
	}, log)

	return &app{
		cfg:        cfg,
		log:        log,
		supabase:   client,
		store:      store,
		dispatcher: d,
		registry:   registry,
	}, nil
}

// Close waits for background regenerations, then releases the dispatcher and store
func (a *app) Close() {
	a.registry.Wait()
	a.dispatcher.Close()
	closeStore(a.store, a.log)
}

func closeStore(store repository.BlobStore, log logger.Logger) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("failed to close store", logger.Err(err))
		}
	}
}
