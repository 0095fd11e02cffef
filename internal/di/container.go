package di

import (
	"context"
	"io"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mikey/inbox-triage/internal/adapters/gmail"
	"github.com/mikey/inbox-triage/internal/classifier"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/credential"
	"github.com/mikey/inbox-triage/internal/factory"
	"github.com/mikey/inbox-triage/internal/fetcher"
	"github.com/mikey/inbox-triage/internal/logging"
	"github.com/mikey/inbox-triage/internal/scan"
	"github.com/mikey/inbox-triage/internal/utils"
	"github.com/mikey/inbox-triage/internal/whitelist"
)

// Closers collects resources opened by providers so they can be released on exit
type Closers struct {
	mu   sync.Mutex
	list []io.Closer
}

// Add registers c for Close
func (c *Closers) Add(closer io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, closer)
}

// Close releases the registered resources in reverse order
func (c *Closers) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := len(c.list) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.list[i].Close())
	}
	c.list = nil
	return err
}

// BuildContainer creates and configures a dependency injection container.
// Providers run lazily, so commands only open what they use.
func BuildContainer(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	// Register configuration and logger
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}
	if err := container.Provide(func() *Closers { return &Closers{} }); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register store
	if err := container.Provide(func(f *factory.StoreFactory, closers *Closers) (core.Store, error) {
		s, err := f.CreateStore(context.Background())
		if err != nil {
			return nil, err
		}
		closers.Add(s)
		return s, nil
	}); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory, closers *Closers) (core.LLMClient, error) {
		client, err := f.CreateLLMClient(context.Background())
		if err != nil {
			return nil, err
		}
		if closer, ok := client.(io.Closer); ok {
			closers.Add(closer)
		}
		return client, nil
	}); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) classifier.BroadcastDetector {
		domains := cfg.GetClassifier().BroadcastDomains
		if len(domains) > 0 {
			logger.Info("Loaded broadcast sender domains", zap.Strings("domains", domains))
		}
		return classifier.NewHeuristicDetector(whitelist.NewChecker(domains, logger))
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		llm core.LLMClient,
		detector classifier.BroadcastDetector,
		tp *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) *classifier.Service {
		return classifier.NewService(llm, detector, tp, cfg.GetClassifier(), logger)
	}); err != nil {
		return nil, err
	}

	// Register credential gate
	if err := container.Provide(func(cfg *config.Config) *credential.OAuthRefresher {
		gm := cfg.GetGmail()
		return credential.NewOAuthRefresher(gm.ClientID, gm.ClientSecret, gm.TokenURL)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		s core.Store,
		refresher *credential.OAuthRefresher,
		cfg *config.Config,
		logger *zap.Logger,
	) (*credential.Gate, error) {
		scanCfg, err := cfg.GetScan()
		if err != nil {
			return nil, err
		}
		return credential.NewGate(s, refresher, scanCfg.RefreshMargin, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register mail provider and fetcher
	if err := container.Provide(func(cfg *config.Config, tp *utils.TextProcessor, logger *zap.Logger) *gmail.Provider {
		return gmail.NewProvider(cfg.GetGmail().Endpoint, tp, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		provider *gmail.Provider,
		tp *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) (*fetcher.Fetcher, error) {
		fetcherCfg, err := cfg.GetFetcher()
		if err != nil {
			return nil, err
		}
		return fetcher.New(provider, tp, fetcher.OptionsFromConfig(cfg.GetGmail(), fetcherCfg), logger), nil
	}); err != nil {
		return nil, err
	}

	// Register scan orchestration
	if err := container.Provide(func(
		s core.Store,
		gate *credential.Gate,
		f *fetcher.Fetcher,
		c *classifier.Service,
		cfg *config.Config,
		logger *zap.Logger,
	) (*scan.Scanner, error) {
		scanCfg, err := cfg.GetScan()
		if err != nil {
			return nil, err
		}
		return scan.NewScanner(s, gate, f, c, scanCfg, cfg.GetGmail().LinkFormat, logger), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(
		scanner *scan.Scanner,
		s core.Store,
		cfg *config.Config,
		logger *zap.Logger,
	) (*scan.Batch, error) {
		batchCfg, err := cfg.GetBatch()
		if err != nil {
			return nil, err
		}
		return scan.NewBatch(scanner, s, batchCfg, logger), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(batch *scan.Batch, cfg *config.Config, logger *zap.Logger) (*scan.Scheduler, error) {
		batchCfg, err := cfg.GetBatch()
		if err != nil {
			return nil, err
		}
		return scan.NewScheduler(batch, batchCfg.Schedule, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
