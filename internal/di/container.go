package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/adapters/extract"
	"github.com/devscan/linkguard/internal/adapters/httpapi"
	"github.com/devscan/linkguard/internal/adapters/unshorten"
	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
	"github.com/devscan/linkguard/internal/factory"
	"github.com/devscan/linkguard/internal/logging"
	"github.com/devscan/linkguard/internal/suspicion"
	"github.com/devscan/linkguard/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStorage); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}

	// Register cache and link store
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

	// Register whitelist index
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Index {
		wlCfg := cfg.GetWhitelist()
		return whitelist.NewIndex(wlCfg.ManualDomains, wlCfg.CutoffRank, logger)
	}); err != nil {
		return nil, err
	}

	// Register suspicion detector
	if err := container.Provide(suspicion.NewDetector); err != nil {
		return nil, err
	}

	// Register resolver
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

	// Register helper adapters
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *extract.Extractor {
		return extract.NewExtractor(cfg.GetServer().UserAgent, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *unshorten.Expander {
		return unshorten.NewExpander(cfg.GetServer().UserAgent, logger)
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		resolver *core.Resolver,
		store core.LinkStore,
		cache core.VerdictCache,
		classifier core.Classifier,
		extractor *extract.Extractor,
		expander *unshorten.Expander,
		logger *zap.Logger,
	) *httpapi.Server {
		return httpapi.NewServer(cfg.GetServer().ListenAddress, resolver, store,
			cache, classifier, extractor, expander, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
