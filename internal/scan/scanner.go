// Package scan drives single scans and multi-user batches through the
// credential, fetch, classify and persist stages.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/fetcher"
	"github.com/mikey/inbox-triage/internal/logging"
	"github.com/mikey/inbox-triage/internal/whitelist"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AccessGate hands out valid mailbox access tokens
type AccessGate interface {
	EnsureValidAccess(ctx context.Context, userID string) (core.AccessToken, error)
	ForceRefresh(ctx context.Context, userID string, rejected core.AccessToken) (core.AccessToken, error)
}

// CandidateSource produces the message stream of a scan window
type CandidateSource interface {
	FetchCandidates(userID string, window core.ScanWindow, token core.AccessToken, limit int) *fetcher.Stream
}

// Classifier assigns a lane and scores to one message
type Classifier interface {
	Classify(ctx context.Context, msg *core.RawMessage, profile *core.UserProfile) (*core.Classification, error)
}

// Request describes one scan.
// Window takes precedence over Preset; with neither the scan continues from
// the user's last successful scan or falls back to the default lookback.
type Request struct {
	UserID string
	Window *core.ScanWindow
	Preset string
	Limit  int
}

// Scanner runs scans for single users
type Scanner struct {
	store      core.Store
	gate       AccessGate
	source     CandidateSource
	classifier Classifier
	cfg        config.ScanConfig
	linkFormat string
	admins     *whitelist.Checker
	adminIDs   map[string]struct{}
	now        func() time.Time
	logger     *zap.Logger
}

// NewScanner creates a new scanner
func NewScanner(
	store core.Store,
	gate AccessGate,
	source CandidateSource,
	classifier Classifier,
	cfg config.ScanConfig,
	linkFormat string,
	logger *zap.Logger,
) *Scanner {
	if cfg.ClassifyConcurrency < 1 {
		cfg.ClassifyConcurrency = 1
	}
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 48 * time.Hour
	}
	adminIDs := make(map[string]struct{}, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		adminIDs[id] = struct{}{}
	}
	return &Scanner{
		store:      store,
		gate:       gate,
		source:     source,
		classifier: classifier,
		cfg:        cfg,
		linkFormat: linkFormat,
		admins:     whitelist.NewChecker(cfg.AdminEmails, logger),
		adminIDs:   adminIDs,
		now:        time.Now,
		logger:     logger,
	}
}

// IsAdmin reports whether the profile bypasses the quota gate
func (s *Scanner) IsAdmin(profile *core.UserProfile) bool {
	if _, ok := s.adminIDs[profile.ID]; ok {
		return true
	}
	return profile.Email != "" && s.admins.Matches(profile.Email)
}

// tally counts per-message outcomes across classification workers
type tally struct {
	mu        sync.Mutex
	processed int
	skipped   int
	errored   int
}

func (t *tally) add(processed, skipped, errored int) {
	t.mu.Lock()
	t.processed += processed
	t.skipped += skipped
	t.errored += errored
	t.mu.Unlock()
}

// Scan runs one scan for req.UserID.
//
// The returned result is never nil and carries the counters reached so far.
// On failure the error is a *core.ScanFailure; records persisted before the
// failure are kept.
func (s *Scanner) Scan(ctx context.Context, req Request) (*core.ScanResult, error) {
	result := &core.ScanResult{UserID: req.UserID, State: core.ScanRequested}
	logger := logging.ForScan(s.logger, uuid.NewString(), req.UserID)

	fail := func(reason core.FailureReason, err error) (*core.ScanResult, error) {
		result.State = core.ScanFailed
		result.Summarize()
		logger.Warn("Scan failed",
			zap.String("reason", string(reason)),
			zap.String("summary", result.Message),
			zap.Error(err))
		return result, &core.ScanFailure{Reason: reason, Err: err}
	}

	profile, err := s.store.GetProfile(ctx, req.UserID)
	if err != nil {
		return fail(core.FailureInternal, fmt.Errorf("failed to load profile: %w", err))
	}

	admin := s.IsAdmin(profile)
	sub := profile.Subscription
	if !admin && sub.FreeScanUsed && !sub.Entitled(s.now()) {
		return fail(core.FailureQuota, core.ErrQuotaExceeded)
	}

	window, err := s.resolveWindow(ctx, req, admin)
	if err != nil {
		return fail(core.FailureInternal, err)
	}
	result.Window = window

	token, err := s.gate.EnsureValidAccess(ctx, req.UserID)
	if err != nil {
		return fail(credentialReason(ctx, err), err)
	}
	result.State = core.ScanCredentialChecked

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	logger.Info("Scan started",
		zap.Time("since", window.Since),
		zap.Time("until", window.Until),
		zap.String("window_source", string(window.Source)),
		zap.Int("limit", limit))

	stream := s.source.FetchCandidates(req.UserID, window, token, limit)
	result.State = core.ScanFetching

	counts := &tally{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ClassifyConcurrency)

	sess := &session{userID: req.UserID, token: token}
	var storeErr, authErr error
fetch:
	for {
		for stream.Next(gctx) {
			msg := stream.Message()
			result.Found++

			exists, err := s.store.Exists(gctx, req.UserID, msg.ProviderID)
			if err != nil {
				storeErr = fmt.Errorf("failed to check message %s: %w", msg.ProviderID, err)
				break fetch
			}
			if exists {
				counts.add(0, 1, 0)
				continue
			}

			result.State = core.ScanClassifying
			g.Go(func() error {
				return s.process(gctx, logger, profile, msg, counts)
			})
		}

		more, err := s.resume(gctx, sess, stream)
		if err != nil {
			authErr = err
			break
		}
		if !more {
			break
		}
	}
	workerErr := g.Wait()

	result.Processed = counts.processed
	result.Skipped = counts.skipped
	result.Errored = counts.errored
	result.Truncated = stream.Truncated()

	switch {
	case ctx.Err() != nil:
		return fail(core.FailureCancelled, ctx.Err())
	case storeErr != nil:
		return fail(core.FailureInternal, storeErr)
	case workerErr != nil:
		return fail(core.FailureInternal, workerErr)
	case authErr != nil:
		return fail(credentialReason(ctx, authErr), authErr)
	case stream.Truncated():
		logger.Warn("Message listing truncated",
			zap.Int("fetched", stream.Count()),
			zap.String("resume_token", stream.ResumeToken()))
		return fail(core.FailureProvider, stream.Err())
	case errors.Is(stream.Err(), core.ErrUnauthorized):
		return fail(core.FailureAuth, stream.Err())
	case stream.Err() != nil:
		return fail(core.FailureProvider, stream.Err())
	}

	result.State = core.ScanPersisting
	if err := s.store.RecordSuccessfulScan(ctx, req.UserID, window.Until); err != nil {
		return fail(core.FailureInternal, fmt.Errorf("failed to record scan: %w", err))
	}
	if !admin && !sub.FreeScanUsed {
		if err := s.store.MarkFreeScanUsed(ctx, req.UserID); err != nil {
			logger.Error("Failed to mark free scan used", zap.Error(err))
		}
	}

	result.State = core.ScanCompleted
	result.Summarize()
	logger.Info("Scan completed",
		zap.Int("found", result.Found),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored))
	return result, nil
}

// process classifies one message and persists it straight away
func (s *Scanner) process(ctx context.Context, logger *zap.Logger, profile *core.UserProfile, msg *core.RawMessage, counts *tally) error {
	classification, err := s.classifier.Classify(ctx, msg, profile)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("Message not classified",
			zap.String("message_id", msg.ProviderID),
			zap.Error(err))
		counts.add(0, 0, 1)
		return nil
	}

	rec := &core.ClassifiedMessage{
		ID:               uuid.NewString(),
		UserID:           profile.ID,
		ProviderMsgID:    msg.ProviderID,
		Sender:           msg.From,
		Subject:          msg.Subject,
		Date:             msg.Date,
		Lane:             classification.Lane,
		Category:         classification.Category,
		Priority:         classification.Priority,
		ImportanceScore:  classification.ImportanceScore,
		ThesisMatchScore: classification.ThesisMatchScore,
		Summary:          classification.Summary,
		Link:             s.link(msg.ProviderID),
		CreatedAt:        s.now(),
	}

	// a paid-for verdict is kept even if the scan is cancelled meanwhile
	outcome, err := s.store.UpsertIfAbsent(context.WithoutCancel(ctx), rec)
	if err != nil {
		return fmt.Errorf("failed to persist message %s: %w", msg.ProviderID, err)
	}
	if outcome == core.AlreadyExists {
		counts.add(0, 1, 0)
		return nil
	}
	counts.add(1, 0, 0)
	return nil
}

// session tracks the access token of one fetch
type session struct {
	userID    string
	token     core.AccessToken
	refreshed bool
}

// resume refreshes a token the provider refused, once per session, and
// reports whether the stream can be read again
func (s *Scanner) resume(ctx context.Context, sess *session, stream *fetcher.Stream) (bool, error) {
	if !errors.Is(stream.Err(), core.ErrUnauthorized) || ctx.Err() != nil {
		return false, nil
	}
	if sess.refreshed {
		return false, fmt.Errorf("%w: provider refused refreshed token: %v", core.ErrReauthRequired, stream.Err())
	}
	sess.refreshed = true

	token, err := s.gate.ForceRefresh(ctx, sess.userID, sess.token)
	if err != nil {
		return false, err
	}
	sess.token = token
	return stream.Reauthorize(token), nil
}

func (s *Scanner) link(providerID string) string {
	if s.linkFormat == "" {
		return ""
	}
	return fmt.Sprintf(s.linkFormat, providerID)
}

// resolveWindow picks the scan window: explicit, preset, since the last
// successful scan, or the default lookback, in that order
func (s *Scanner) resolveWindow(ctx context.Context, req Request, admin bool) (core.ScanWindow, error) {
	now := s.now()

	if req.Window != nil {
		w := *req.Window
		if w.Until.IsZero() {
			w.Until = now
		}
		w.Source = core.WindowExplicit
		if err := w.Validate(); err != nil {
			return core.ScanWindow{}, err
		}
		return w, nil
	}

	if req.Preset != "" {
		d, err := PresetDuration(req.Preset, admin)
		if err != nil {
			return core.ScanWindow{}, err
		}
		return core.ScanWindow{Since: now.Add(-d), Until: now, Source: core.WindowExplicit}, nil
	}

	last, err := s.store.LastSuccessfulScan(ctx, req.UserID)
	if err != nil {
		return core.ScanWindow{}, fmt.Errorf("failed to load last scan: %w", err)
	}
	if !last.IsZero() && last.Before(now) {
		return core.ScanWindow{Since: last, Until: now, Source: core.WindowSinceLastScan}, nil
	}
	return core.ScanWindow{Since: now.Add(-s.cfg.DefaultLookback), Until: now, Source: core.WindowDefaultLookback}, nil
}

func credentialReason(ctx context.Context, err error) core.FailureReason {
	switch {
	case ctx.Err() != nil:
		return core.FailureCancelled
	case errors.Is(err, core.ErrNotConnected), errors.Is(err, core.ErrReauthRequired):
		return core.FailureAuth
	case errors.Is(err, core.ErrProviderUnavailable):
		return core.FailureProvider
	default:
		return core.FailureInternal
	}
}
