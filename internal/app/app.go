// Package app wires configuration, storage, the LLM provider, and the
// encounter engine into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oslerlabs/simcore/internal/config"
	"github.com/oslerlabs/simcore/internal/encounter"
	"github.com/oslerlabs/simcore/internal/evaluation"
	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/metrics"
	"github.com/oslerlabs/simcore/internal/patient"
	"github.com/oslerlabs/simcore/internal/progress"
	"github.com/oslerlabs/simcore/internal/specialty"
	"github.com/oslerlabs/simcore/internal/store"
)

// App holds the assembled components.
type App struct {
	Config     config.Config
	Store      *store.Store
	Provider   llm.Provider
	Engine     *encounter.Engine
	Dispatcher *progress.Dispatcher
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// Options tweaks assembly for a single invocation.
type Options struct {
	// DBPath overrides config and the default database location.
	DBPath string

	// MockProvider forces the mock LLM provider regardless of config.
	MockProvider bool
}

// New assembles the application. Close must be called when done.
func New(ctx context.Context, cfg config.Config, opts Options, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
		dbPath = p
	} else if err := store.EnsureDir(dbPath); err != nil {
		return nil, fmt.Errorf("preparing database directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	llmCfg, err := resolveLLMConfig(cfg, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	provider, err := llm.NewProvider(ctx, llmCfg, st, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry())

	dispatcher := progress.NewDispatcher(
		&progress.LogPropagator{Log: log},
		&progress.LogPropagator{Log: log},
		log, m)

	engine := encounter.NewEngine(
		st,
		patient.NewGenerator(provider, patient.DefaultConfig(), log),
		evaluation.NewEngine(provider, evaluation.DefaultConfig(), log, m),
		specialty.NewRegistry(),
		dispatcher,
		encounter.Config{EndTriggers: cfg.EndTriggers},
		log, m)

	return &App{
		Config:     cfg,
		Store:      st,
		Provider:   provider,
		Engine:     engine,
		Dispatcher: dispatcher,
		Metrics:    m,
		Log:        log,
	}, nil
}

func resolveLLMConfig(cfg config.Config, opts Options) (llm.Config, error) {
	if opts.MockProvider {
		c := llm.DefaultConfig()
		c.Provider = "mock"
		return c, nil
	}
	return cfg.LLMConfig()
}

// Close drains pending progress notifications and releases the store.
func (a *App) Close() error {
	a.Dispatcher.Close()
	return a.Store.Close()
}
