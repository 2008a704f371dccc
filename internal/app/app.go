// Package app wires configuration into the services shared by the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/cache"
	"github.com/phenbot/study-engine/internal/config"
	"github.com/phenbot/study-engine/internal/dataset"
	"github.com/phenbot/study-engine/internal/ingest"
	"github.com/phenbot/study-engine/internal/llm"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
	"github.com/phenbot/study-engine/internal/study"
)

// App holds the constructed services.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Store    storage.Store
	Sessions cache.Client
	Dataset  *dataset.Dataset
	Backend  llm.Backend
	Router   *answer.Router
	Accounts *account.Service
	Study    *study.Service
	Pipeline *ingest.Pipeline
}

// Option customizes construction.
type Option func(*options)

type options struct {
	backend   llm.Backend
	extractor ingest.Extractor
}

// WithBackend replaces the configured generative backend.
func WithBackend(b llm.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithExtractor replaces the go-fitz PDF extractor.
func WithExtractor(e ingest.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// New opens the store and cache, loads the dataset and builds every service.
// The caller owns the result and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(ctx, StoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sessions, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		MaxEntries: cfg.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open session cache: %w", err)
	}

	ds, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Dataset.Path).Msg("Dataset unusable, continuing with an empty one")
	}
	logger.Info().Int("entries", ds.Len()).Strs("subjects", ds.Subjects()).Msg("Dataset loaded")

	backend := o.backend
	if backend == nil {
		backend = NewBackend(cfg, logger)
	}

	router, err := answer.NewRouter(logger, answer.Config{
		DatasetPolicy:       cfg.Answer.DatasetPolicy,
		EscalationThreshold: cfg.Answer.EscalationThreshold,
		MaxChunks:           cfg.Answer.MaxChunks,
		HistoryLimit:        cfg.Answer.HistoryLimit,
		BackendTimeout:      cfg.Backend.Timeout,
		ContextCharBudget:   cfg.Answer.ContextCharBudget,
	}, ds, backend, answer.Stores{Users: store, Documents: store, History: store})
	if err != nil {
		_ = sessions.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create answer router: %w", err)
	}

	accounts := account.NewService(logger, account.Config{SessionTTL: cfg.Session.TTL}, store, sessions)

	extractor := o.extractor
	if extractor == nil {
		extractor = ingest.NewFitzExtractor()
	}

	pipeline := ingest.NewPipeline(logger, ingest.PipelineConfig{
		UploadDir:         cfg.Ingestion.UploadDir,
		ChunkSize:         cfg.Ingestion.ChunkSize,
		KeywordLimit:      cfg.Ingestion.KeywordLimit,
		MaxConcurrentJobs: cfg.Ingestion.MaxConcurrentJobs,
	}, extractor, store)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Sessions: sessions,
		Dataset:  ds,
		Backend:  backend,
		Router:   router,
		Accounts: accounts,
		Study:    study.NewService(logger, store, store, backend, cfg.Backend.Timeout),
		Pipeline: pipeline,
	}, nil
}

// NewBackend returns the HTTP backend client, or an always-unavailable backend
// when no API key is configured.
func NewBackend(cfg *config.Config, logger *observability.Logger) llm.Backend {
	client, err := llm.NewClient(llm.Config{
		APIKey:  cfg.Backend.APIKey,
		Model:   cfg.Backend.Model,
		URL:     cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
		Retry: llm.RetryConfig{
			MaxRetries:     cfg.Backend.MaxRetries,
			InitialBackoff: cfg.Backend.InitialBackoff,
			MaxBackoff:     cfg.Backend.MaxBackoff,
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Generative backend disabled, answering from the dataset only")
		return llm.Unavailable{}
	}
	logger.Info().Str("model", client.Model()).Msg("Generative backend configured")
	return client
}

// StoreConfig maps the database section onto a storage configuration.
func StoreConfig(cfg *config.Config) storage.Config {
	sc := storage.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.DatabaseDSN(),
	}
	switch cfg.Database.Driver {
	case "sqlite":
		sc.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
		sc.JournalMode = cfg.Database.SQLite.JournalMode
	case "postgres":
		sc.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		sc.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		sc.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	case "bolt":
		sc.BoltTimeout = cfg.Database.Bolt.Timeout
	}
	return sc
}

// Close releases the cache and the store.
func (a *App) Close() error {
	return errors.Join(a.Sessions.Close(), a.Store.Close())
}
