package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/pfrederiksen/shuttle-schedule/internal/cache"
	"github.com/pfrederiksen/shuttle-schedule/internal/config"
	"github.com/pfrederiksen/shuttle-schedule/internal/fetch"
	"github.com/pfrederiksen/shuttle-schedule/internal/freshness"
	"github.com/pfrederiksen/shuttle-schedule/internal/logger"
	"github.com/pfrederiksen/shuttle-schedule/internal/parser"
	"github.com/pfrederiksen/shuttle-schedule/internal/storage"
)

// app holds the wired pipeline for one command invocation
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	metrics   *logger.Metrics
	evaluator freshness.Evaluator
	manager   *cache.Manager
	closers   []func() error
}

// loadConfig reads the configuration and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Cache.Dir = flagDataDir
	}
	return cfg, nil
}

// newLogger writes to stderr, and also to the configured log file
func newLogger(cfg *config.Config, stderr io.Writer) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if flagVerbose {
		level = logger.LevelDebug
	}

	writers := []io.Writer{logger.ConsoleWriter(stderr)}
	if cfg.Log.File != "" {
		writers = append(writers, logger.FileWriter(cfg.Log.File))
	}

	log := logger.NewMulti(level, writers...)
	logger.SetDefault(log)
	return log
}

// newParser creates the table parser from configuration
func newParser(cfg *config.Config) *parser.Parser {
	return parser.New(cfg.ParserOptions())
}

// newApp wires storage, bundle, fetch chain and cache manager
func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		log:       newLogger(cfg, stderr),
		metrics:   logger.NewMetrics(),
		evaluator: freshness.New(cfg.Freshness.MaxAge),
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	chain := fetch.NewChain(
		cfg.Strategies(),
		fetch.NewHTTPFetcher(nil, cfg.Source.UserAgent),
		newParser(cfg),
		cfg.ChainConfig(),
	).WithLogger(a.log).WithMetrics(a.metrics)

	a.manager = cache.NewManager(store, storage.NewBundle(cfg.Bundle.Path), chain, a.evaluator).
		WithLogger(a.log).
		WithMetrics(a.metrics)

	a.log.Debug("Pipeline ready", logger.Fields{
		"backend":    cfg.Cache.Backend,
		"strategies": len(chain.Strategies()),
		"bundle":     cfg.Bundle.Path,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.BackendPostgres:
		store, err := storage.NewPostgresStore(ctx, a.cfg.Cache.DSN, a.log)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		store, err := storage.New(a.cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return store, nil
	}
}

// Close releases resources and logs collected metrics at debug level
func (a *app) Close() {
	a.log.Debug("Metrics", a.metrics.Snapshot().Fields())
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("Failed to close resource", nil, err)
		}
	}
}
