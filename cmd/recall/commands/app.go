package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/internal/vectorindex"
)

// app holds every component a command may use. It is built per command
// invocation and torn down by close.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	memories  storage.MemoryStore
	profiles  storage.ProfileStore
	indices   *vectorindex.Manager
	generator *llm.Generator
	resolver  llm.ProfileResolver
	creds     llm.CredentialResolver
	tasks     *engine.TaskGroup
	search    *engine.MemorySearchService
	indexer   *engine.Indexer

	// sqlDB is the SQLite handle when the sqlite engine is in use.
	sqlDB *sql.DB

	stopFlusher context.CancelFunc
	flushDone   chan error
}

// newApp opens the configured storage engine and wires the retrieval
// components on top of it. The periodic flusher starts immediately.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	persister, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	a.indices = vectorindex.NewManager(persister, logger)
	a.generator = llm.NewGenerator(llm.GeneratorConfig{
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
		Breaker: llm.CircuitBreakerConfig{
			MaxFailures: uint32(max(cfg.Embedding.BreakerMaxFailures, 0)),
			Timeout:     cfg.Embedding.BreakerOpenTimeout,
		},
	}, logger)

	chain := llm.ChainProfileResolver{llm.StoreProfileResolver{Store: a.profiles}}
	if p := cfg.DefaultProfile(); p != nil {
		chain = append(chain, llm.StaticProfileResolver{Profile: p})
	}
	a.resolver = chain
	a.creds = llm.EnvCredentialResolver{}

	a.tasks = engine.NewTaskGroup(cfg.Search.AccessUpdateTimeout, logger)
	a.search = engine.NewMemorySearchService(a.memories, a.indices, a.generator, a.resolver, a.creds, a.tasks, engine.SearchConfig{
		DefaultLimit:        cfg.Search.DefaultLimit,
		MaxLimit:            cfg.Search.MaxLimit,
		AccessUpdateTimeout: cfg.Search.AccessUpdateTimeout,
	}, logger)
	a.indexer = engine.NewIndexer(a.memories, a.indices, a.generator, a.resolver, a.creds, logger)

	flushCtx, stop := context.WithCancel(context.Background())
	a.stopFlusher = stop
	a.flushDone = make(chan error, 1)
	flusher := engine.NewFlusher(a.indices, cfg.Index.FlushInterval, logger)
	go func() { a.flushDone <- flusher.Run(flushCtx) }()

	return a, nil
}

func (a *app) openStorage() (vectorindex.Persister, error) {
	switch a.cfg.Storage.Engine {
	case config.EngineSQLite:
		if err := os.MkdirAll(a.cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", a.cfg.Storage.DataPath, err)
		}
		db, err := sqlite.Open(a.cfg.DataFile())
		if err != nil {
			return nil, err
		}
		a.useSQLite(db)
		a.sqlDB = db
		return sqlite.NewIndexStore(db), nil

	case config.EngineMemory:
		db, err := sqlite.Open(":memory:")
		if err != nil {
			return nil, err
		}
		a.useSQLite(db)
		return vectorindex.NewMemoryPersister(), nil

	case config.EnginePostgres:
		db, err := postgres.Open(a.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if !db.PgvectorAvailable {
			a.logger.Info("pgvector extension unavailable, storing vectors as bytea only")
		}
		a.memories = postgres.NewMemoryStoreFromDB(db)
		a.profiles = postgres.NewProfileStore(db)
		return postgres.NewIndexStore(db), nil
	}
	return nil, fmt.Errorf("unknown storage engine %q", a.cfg.Storage.Engine)
}

func (a *app) useSQLite(db *sql.DB) {
	a.memories = sqlite.NewMemoryStoreFromDB(db)
	a.profiles = sqlite.NewProfileStore(db)
}

// close waits for background writes, stops the flusher, which saves dirty
// indices one last time, and closes storage.
func (a *app) close(ctx context.Context) error {
	var errs []error

	if err := a.tasks.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks: %w", err))
	}
	a.stopFlusher()
	if err := <-a.flushDone; err != nil {
		errs = append(errs, err)
	}
	if err := a.memories.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
