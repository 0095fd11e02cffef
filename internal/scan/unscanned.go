package scan

import (
	"context"
	"fmt"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// Unscanned backlog levels
const (
	BacklogNotify = 15
	BacklogUrgent = 50
)

// Backlog is the number of candidate messages a scan would still classify
type Backlog struct {
	UserID    string
	Window    core.ScanWindow
	Checked   int
	Unscanned int
	Truncated bool
}

// ThresholdReached reports whether the backlog is worth a reminder
func (b *Backlog) ThresholdReached() bool {
	return b.Unscanned >= BacklogNotify
}

// Urgent reports whether the backlog is large
func (b *Backlog) Urgent() bool {
	return b.Unscanned >= BacklogUrgent
}

// CountUnscanned counts the messages in the user's next scan window that have
// no stored record, checking at most limit candidates. Nothing is classified
// or persisted, so the quota gate does not apply.
//
// On a provider failure the partial backlog is returned with the error.
func (s *Scanner) CountUnscanned(ctx context.Context, userID string, limit int) (*Backlog, error) {
	if _, err := s.store.GetProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	window, err := s.resolveWindow(ctx, Request{UserID: userID}, false)
	if err != nil {
		return nil, err
	}
	token, err := s.gate.EnsureValidAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	backlog := &Backlog{UserID: userID, Window: window}
	stream := s.source.FetchCandidates(userID, window, token, limit)
	sess := &session{userID: userID, token: token}
	for {
		for stream.Next(ctx) {
			backlog.Checked++
			exists, err := s.store.Exists(ctx, userID, stream.Message().ProviderID)
			if err != nil {
				return backlog, fmt.Errorf("failed to check message: %w", err)
			}
			if !exists {
				backlog.Unscanned++
			}
		}
		more, err := s.resume(ctx, sess, stream)
		if err != nil {
			return backlog, err
		}
		if !more {
			break
		}
	}

	backlog.Truncated = stream.Truncated()
	if err := stream.Err(); err != nil {
		return backlog, err
	}

	s.logger.Debug("Counted unscanned messages",
		zap.String("user_id", userID),
		zap.Int("checked", backlog.Checked),
		zap.Int("unscanned", backlog.Unscanned))
	return backlog, nil
}
