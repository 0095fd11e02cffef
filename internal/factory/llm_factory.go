package factory

import (
	"context"
	"fmt"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates a new LLM client based on the configuration
func (f *LLMFactory) CreateLLMClient(ctx context.Context) (core.LLMClient, error) {
	provider := f.cfg.GetLLM().Provider
	f.logger.Info("Creating LLM client", zap.String("provider", provider))

	switch provider {
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger).CreateLLMClient(ctx)
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger).CreateLLMClient(ctx)
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger).CreateLLMClient(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
