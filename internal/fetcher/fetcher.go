// Package fetcher turns a scan window into a bounded, lazily paged
// sequence of candidate messages.
package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"go.uber.org/zap"
)

// Options controls paging and retries
type Options struct {
	Query          string
	PageSize       int64
	MaxBodyBytes   int
	TailBytes      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// OptionsFromConfig builds fetcher options from the application config
func OptionsFromConfig(gmail config.GmailConfig, f config.FetcherConfig) Options {
	return Options{
		Query:          gmail.Query,
		PageSize:       gmail.PageSize,
		MaxBodyBytes:   f.MaxBodyBytes,
		TailBytes:      f.TailBytes,
		MaxAttempts:    f.MaxAttempts,
		InitialBackoff: f.InitialBackoff,
		MaxBackoff:     f.MaxBackoff,
	}
}

// Fetcher produces candidate streams from a mail provider
type Fetcher struct {
	provider      core.MailProvider
	textProcessor *utils.TextProcessor
	opts          Options
	logger        *zap.Logger
}

// New creates a new fetcher
func New(provider core.MailProvider, textProcessor *utils.TextProcessor, opts Options, logger *zap.Logger) *Fetcher {
	if opts.TailBytes <= 0 {
		opts.TailBytes = 1024
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return &Fetcher{
		provider:      provider,
		textProcessor: textProcessor,
		opts:          opts,
		logger:        logger,
	}
}

// FetchCandidates returns a stream over the messages dated inside window,
// newest first, yielding at most limit messages (limit <= 0 means unbounded).
func (f *Fetcher) FetchCandidates(userID string, window core.ScanWindow, token core.AccessToken, limit int) *Stream {
	return &Stream{
		f:         f,
		userID:    userID,
		window:    window,
		token:     token,
		limit:     limit,
		pageToken: window.PageToken,
		seen:      make(map[string]struct{}),
		logger:    f.logger.With(zap.String("user_id", userID)),
	}
}

// Stream is a finite, lazily paged sequence of fetched messages.
// It is not safe for concurrent use.
type Stream struct {
	f         *Fetcher
	userID    string
	window    core.ScanWindow
	token     core.AccessToken
	limit     int
	pageToken string
	lastPage  bool
	pending   []core.MessageRef
	seen      map[string]struct{}
	current   *core.RawMessage
	count     int
	done      bool
	truncated bool
	err       error
	logger    *zap.Logger
}

// Next advances to the next candidate. It returns false when the stream is
// exhausted or failed; Err and Truncated tell which.
func (s *Stream) Next(ctx context.Context) bool {
	s.current = nil
	for !s.done {
		if s.limit > 0 && s.count >= s.limit {
			s.finish(nil)
			break
		}
		if err := ctx.Err(); err != nil {
			s.finish(err)
			break
		}

		if len(s.pending) == 0 {
			if s.lastPage {
				s.finish(nil)
				break
			}
			if err := s.loadPage(ctx); err != nil {
				s.finish(err)
			}
			continue
		}

		ref := s.pending[0]
		s.pending = s.pending[1:]
		if _, dup := s.seen[ref.ID]; dup {
			continue
		}
		s.seen[ref.ID] = struct{}{}

		msg, err := s.getMessage(ctx, ref.ID)
		if errors.Is(err, core.ErrUnauthorized) {
			// keep the message for Reauthorize
			s.pending = append([]core.MessageRef{ref}, s.pending...)
			delete(s.seen, ref.ID)
		}
		if errors.Is(err, core.ErrMessageGone) {
			s.logger.Debug("Listed message disappeared", zap.String("id", ref.ID))
			continue
		}
		if err != nil {
			s.finish(err)
			break
		}

		if !msg.Date.IsZero() {
			if msg.Date.Before(s.window.Since) {
				s.logger.Debug("Reached window lower bound", zap.Time("date", msg.Date))
				s.finish(nil)
				break
			}
			if !msg.Date.Before(s.window.Until) {
				continue
			}
		}

		body := s.f.textProcessor.SanitizeUTF8(msg.Body)
		msg.BodyTail = s.f.textProcessor.TailText(body, s.f.opts.TailBytes)
		msg.Body, msg.BodyTruncated = s.f.textProcessor.TruncateText(body, s.f.opts.MaxBodyBytes)
		s.count++
		s.current = msg
		return true
	}
	return false
}

// Message returns the candidate produced by the last successful Next
func (s *Stream) Message() *core.RawMessage {
	return s.current
}

// Err returns the error that ended the stream, if any
func (s *Stream) Err() error {
	return s.err
}

// Truncated reports whether the stream ended early because the provider
// stayed unavailable after retries
func (s *Stream) Truncated() bool {
	return s.truncated
}

// Reauthorize resumes a stream that stopped on core.ErrUnauthorized using
// token, starting again at the message or page that was refused.
// It reports false, leaving the stream untouched, for any other end.
func (s *Stream) Reauthorize(token core.AccessToken) bool {
	if !s.done || !errors.Is(s.err, core.ErrUnauthorized) {
		return false
	}
	s.token = token
	s.err = nil
	s.done = false
	return true
}

// Count is the number of messages yielded so far
func (s *Stream) Count() int {
	return s.count
}

// ResumeToken returns the page token a later scan can continue from
func (s *Stream) ResumeToken() string {
	if s.lastPage {
		return ""
	}
	return s.pageToken
}

func (s *Stream) finish(err error) {
	s.done = true
	if err == nil {
		s.pending = nil
		return
	}
	s.err = err
	if errors.Is(err, core.ErrUnauthorized) {
		s.logger.Warn("Provider refused access token", zap.Int("yielded", s.count))
		return
	}
	s.pending = nil
	if errors.Is(err, core.ErrProviderUnavailable) {
		s.truncated = true
		s.logger.Warn("Fetch truncated after retries",
			zap.Int("yielded", s.count),
			zap.Error(err))
		return
	}
	s.logger.Error("Fetch stopped", zap.Int("yielded", s.count), zap.Error(err))
}

func (s *Stream) loadPage(ctx context.Context) error {
	var page *core.MessagePage
	err := s.f.retry(ctx, func() error {
		var err error
		page, err = s.f.provider.ListMessages(ctx, s.token, core.ListQuery{
			Query:     s.f.opts.Query,
			After:     s.window.Since,
			Before:    s.window.Until,
			PageToken: s.pageToken,
			PageSize:  s.f.opts.PageSize,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.pending = page.Messages
	s.pageToken = page.NextPageToken
	s.lastPage = page.NextPageToken == ""
	s.logger.Debug("Fetched message page",
		zap.Int("size", len(page.Messages)),
		zap.Bool("last", s.lastPage))
	return nil
}

func (s *Stream) getMessage(ctx context.Context, id string) (*core.RawMessage, error) {
	var msg *core.RawMessage
	err := s.f.retry(ctx, func() error {
		var err error
		msg, err = s.f.provider.GetMessage(ctx, s.token, id)
		return err
	})
	return msg, err
}

// retry runs op until it succeeds, fails permanently or runs out of attempts.
// Only provider-unavailable errors are retried.
func (f *Fetcher) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialBackoff
	b.MaxInterval = f.opts.MaxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, core.ErrProviderUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		f.logger.Debug("Retrying provider call", zap.Duration("wait", wait), zap.Error(err))
	})
}
