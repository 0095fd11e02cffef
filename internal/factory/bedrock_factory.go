package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/inbox-triage/internal/adapters/bedrock"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// BedrockFactory builds the Bedrock classifier backend
type BedrockFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger) *BedrockFactory {
	return &BedrockFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient resolves AWS credentials from the default chain, or from
// bedrock.profile when set, and returns a client for bedrock.model_id.
func (f *BedrockFactory) CreateLLMClient(ctx context.Context) (core.LLMClient, error) {
	bedrockCfg := f.cfg.GetBedrock()
	if bedrockCfg.ModelID == "" {
		return nil, errors.New("bedrock model_id is required")
	}
	if bedrockCfg.Region == "" {
		return nil, errors.New("bedrock region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(bedrockCfg.Region)}
	if bedrockCfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(bedrockCfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	runtime := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if bedrockCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(bedrockCfg.Endpoint)
		}
	})

	f.logger.Debug("Using Bedrock classifier",
		zap.String("model_id", bedrockCfg.ModelID),
		zap.String("region", bedrockCfg.Region),
		zap.Bool("custom_endpoint", bedrockCfg.Endpoint != ""))

	return bedrock.NewBedrockClient(
		runtime,
		bedrockCfg.ModelID,
		bedrockCfg.MaxTokens,
		bedrockCfg.Temperature,
		bedrockCfg.TopP,
		f.logger,
	), nil
}
