package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/adapters/classifier/bridge"
	"github.com/devscan/linkguard/internal/adapters/classifier/openai"
	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
)

// ClassifierFactory creates classifier clients based on configuration.
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory.
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{cfg: cfg, logger: logger}
}

// CreateClassifier creates a classifier for the configured provider.
func (f *ClassifierFactory) CreateClassifier() (core.Classifier, error) {
	classifierCfg := f.cfg.GetClassifier()

	switch classifierCfg.Provider {
	case "bridge":
		return bridge.NewClient(bridge.Options{
			Endpoint:   classifierCfg.Endpoint,
			Timeout:    classifierCfg.Timeout,
			Attempts:   classifierCfg.Attempts,
			RetryDelay: classifierCfg.RetryDelay,
		}, f.logger), nil
	case "openai":
		openaiCfg := f.cfg.GetOpenAI()
		if openaiCfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewClient(openaiCfg.APIKey, openaiCfg.ModelName, openaiCfg.MaxTokens, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", classifierCfg.Provider)
	}
}
