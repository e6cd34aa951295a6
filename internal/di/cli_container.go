package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
	"github.com/devscan/linkguard/internal/factory"
	"github.com/devscan/linkguard/internal/logging"
	"github.com/devscan/linkguard/internal/suspicion"
	"github.com/devscan/linkguard/internal/whitelist"
)

// CLIOptions configures the one-shot scanner container.
type CLIOptions struct {
	Verbose    bool
	JSONFormat bool
	// Overrides are applied on top of the defaults, e.g. the classifier
	// endpoint from a CLI flag.
	Overrides map[string]interface{}
}

// BuildCLIContainer assembles a container for the CLI scanner: console
// logging, in-memory cache, no link store.
func BuildCLIContainer(opts CLIOptions) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() (*config.Config, error) {
		v := config.NewEmptyViper()
		v.Set("cache.type", "memory")
		v.Set("store.enabled", false)
		for key, value := range opts.Overrides {
			v.Set(key, value)
		}
		return config.NewFromViper(v), nil
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func() (*zap.Logger, error) {
		return logging.InitConsoleLogger(opts.Verbose, opts.JSONFormat)
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStorage); err != nil {
		return nil, err
	}

	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Storage) core.VerdictCache {
		return s.Cache
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Storage) core.LinkStore {
		return s.Store
	}); err != nil {
		return nil, err
	}

	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Index {
		wlCfg := cfg.GetWhitelist()
		return whitelist.NewIndex(wlCfg.ManualDomains, wlCfg.CutoffRank, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(suspicion.NewDetector); err != nil {
		return nil, err
	}

	if err := container.Provide(func(
		classifier core.Classifier,
		cache core.VerdictCache,
		store core.LinkStore,
		index *whitelist.Index,
		detector *suspicion.Detector,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.Resolver {
		return core.NewResolver(classifier, cache, store, index, detector,
			cfg.GetInt("pipeline.max_concurrency"), logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
