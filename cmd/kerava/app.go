package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"github.com/yairfalse/kerava/collector"
	"github.com/yairfalse/kerava/config"
	"github.com/yairfalse/kerava/cost"
	"github.com/yairfalse/kerava/handler"
	"github.com/yairfalse/kerava/notify"
	"github.com/yairfalse/kerava/providers"
	awsprov "github.com/yairfalse/kerava/providers/aws"
	"github.com/yairfalse/kerava/query"
	"github.com/yairfalse/kerava/storage"
	"github.com/yairfalse/kerava/telemetry"
)

// app wires the full pipeline for a command invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *storage.Store
	queries  *query.Engine
	handler  *handler.Handler
	provider *telemetry.Provider
}

// buildApp assembles config, telemetry, storage, AWS sessions and the
// engines behind the action handler.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewConsoleLogger(debug)

	provider, err := telemetry.NewProvider("kerava", version)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	sessions, err := awsprov.NewSessions(ctx)
	if err != nil {
		_ = store.Close()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	registry := providers.NewRegistry()
	awsprov.Register(registry, sessions)

	engine := collector.NewEngine(registry, store, cost.NewEstimator(), logger)
	queries := query.NewEngine(store)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SNSTopicARN != "" {
		notifier = notify.NewSNSNotifier(sns.NewFromConfig(sessions.Base()), cfg.SNSTopicARN)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		queries:  queries,
		handler:  handler.New(cfg, engine, queries, store, notifier, provider.Metrics, logger),
		provider: provider,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	_ = a.store.Close()
	_ = a.provider.Shutdown(context.Background())
}
