package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner is the single-user scan entry point the batch drives
type Runner interface {
	Scan(ctx context.Context, req Request) (*core.ScanResult, error)
	IsAdmin(profile *core.UserProfile) bool
}

// UserDirectory enumerates the users a batch considers
type UserDirectory interface {
	ListConnectedUsers(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, userID string) (*core.UserProfile, error)
}

// UserOutcome is the batch result for one user
type UserOutcome struct {
	UserID     string
	Result     *core.ScanResult
	Err        error
	SkipReason string
}

// Skipped reports whether the user was not scanned at all
func (o UserOutcome) Skipped() bool {
	return o.SkipReason != ""
}

// Batch scans every eligible connected user
type Batch struct {
	runner Runner
	users  UserDirectory
	cfg    config.BatchConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewBatch creates a new batch driver
func NewBatch(runner Runner, users UserDirectory, cfg config.BatchConfig, logger *zap.Logger) *Batch {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Batch{
		runner: runner,
		users:  users,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Run scans all eligible users with a bounded number of workers.
// A failing user never stops the others; only failing to enumerate users is
// returned as an error.
func (b *Batch) Run(ctx context.Context) ([]UserOutcome, error) {
	ids, err := b.users.ListConnectedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected users: %w", err)
	}

	b.logger.Info("Batch started", zap.Int("users", len(ids)), zap.Int("workers", b.cfg.Workers))
	start := b.now()

	outcomes := make([]UserOutcome, len(ids))
	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = b.runUser(ctx, id)
			return nil
		})
	}
	g.Wait()

	var scanned, skipped, failed int
	for _, o := range outcomes {
		switch {
		case o.Skipped():
			skipped++
		case o.Err != nil:
			failed++
		default:
			scanned++
		}
	}
	b.logger.Info("Batch finished",
		zap.Int("scanned", scanned),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Duration("elapsed", b.now().Sub(start)))
	return outcomes, nil
}

func (b *Batch) runUser(ctx context.Context, userID string) UserOutcome {
	outcome := UserOutcome{UserID: userID}
	logger := b.logger.With(zap.String("user_id", userID))

	profile, err := b.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			outcome.SkipReason = "no profile"
			logger.Info("Skipping user without profile")
			return outcome
		}
		outcome.Err = err
		logger.Error("Failed to load profile", zap.Error(err))
		return outcome
	}
	if reason := b.ineligible(profile); reason != "" {
		outcome.SkipReason = reason
		logger.Info("Skipping user", zap.String("reason", reason))
		return outcome
	}

	if b.cfg.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.UserTimeout)
		defer cancel()
	}

	now := b.now()
	outcome.Result, outcome.Err = b.runner.Scan(ctx, Request{
		UserID: userID,
		Window: &core.ScanWindow{Since: now.Add(-b.cfg.Lookback), Until: now},
		Limit:  b.cfg.Limit,
	})
	if outcome.Err != nil {
		logger.Error("User scan failed", zap.Error(outcome.Err))
	}
	return outcome
}

// ineligible returns why a profile is left out of the batch, or ""
func (b *Batch) ineligible(profile *core.UserProfile) string {
	if len(profile.Keywords) == 0 {
		return "no keywords"
	}
	if b.runner.IsAdmin(profile) {
		return ""
	}
	if !profile.Subscription.Entitled(b.now()) {
		return "no active subscription"
	}
	return ""
}
