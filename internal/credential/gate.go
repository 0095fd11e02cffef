// Package credential keeps delegated mailbox access usable, refreshing
// expiring tokens on demand.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshMargin is the minimum remaining lifetime of a returned token
const DefaultRefreshMargin = 60 * time.Second

// ErrRefreshRejected is returned by a Refresher when the provider refuses the refresh token
var ErrRefreshRejected = errors.New("refresh token rejected")

// Refresher exchanges a refresh token for a new access token.
// Implementations return an error wrapping ErrRefreshRejected when the
// provider refuses the grant; any other error is treated as transient.
type Refresher interface {
	Refresh(ctx context.Context, cred *core.Credential) (*core.Credential, error)
}

// Gate hands out valid access tokens for a user
type Gate struct {
	creds     core.CredentialRepository
	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	flight    singleflight.Group
	logger    *zap.Logger
}

// NewGate creates a new credential gate
func NewGate(creds core.CredentialRepository, refresher Refresher, margin time.Duration, logger *zap.Logger) *Gate {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &Gate{
		creds:     creds,
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		logger:    logger,
	}
}

// EnsureValidAccess returns an access token valid for at least the refresh margin.
//
// Errors: core.ErrNotConnected when no credential is stored,
// core.ErrReauthRequired when the provider rejected the refresh (the stored
// credential is left untouched) and core.ErrProviderUnavailable on transport failures.
func (g *Gate) EnsureValidAccess(ctx context.Context, userID string) (core.AccessToken, error) {
	cred, err := g.creds.GetCredential(ctx, userID)
	if err != nil {
		return core.AccessToken{}, err
	}
	if cred.ValidFor(g.now(), g.margin) {
		return core.AccessToken{Value: cred.AccessToken, Expiry: cred.Expiry}, nil
	}
	return g.shareRefresh(ctx, userID, "")
}

// ForceRefresh replaces an access token the provider refused before its
// recorded expiry. When a concurrent caller already stored a different valid
// token, that token is returned without another refresh.
//
// Errors are those of EnsureValidAccess.
func (g *Gate) ForceRefresh(ctx context.Context, userID string, rejected core.AccessToken) (core.AccessToken, error) {
	g.logger.Info("Provider refused access token", zap.String("user_id", userID))
	return g.shareRefresh(ctx, userID, rejected.Value)
}

// shareRefresh collapses concurrent refreshes for the same user into one
func (g *Gate) shareRefresh(ctx context.Context, userID, rejected string) (core.AccessToken, error) {
	ch := g.flight.DoChan(userID, func() (interface{}, error) {
		return g.refresh(context.WithoutCancel(ctx), userID, rejected)
	})

	select {
	case <-ctx.Done():
		return core.AccessToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.AccessToken{}, res.Err
		}
		fresh := res.Val.(*core.Credential)
		return core.AccessToken{Value: fresh.AccessToken, Expiry: fresh.Expiry}, nil
	}
}

func (g *Gate) refresh(ctx context.Context, userID, rejected string) (*core.Credential, error) {
	// a peer may have refreshed between our read and acquiring the flight
	cred, err := g.creds.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.ValidFor(g.now(), g.margin) && (rejected == "" || cred.AccessToken != rejected) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		g.logger.Warn("Credential expired without refresh token", zap.String("user_id", userID))
		return nil, core.ErrReauthRequired
	}

	g.logger.Debug("Refreshing access token",
		zap.String("user_id", userID),
		zap.Time("expiry", cred.Expiry))

	fresh, err := g.refresher.Refresh(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			g.logger.Warn("Provider rejected token refresh", zap.String("user_id", userID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", core.ErrReauthRequired, err)
		}
		g.logger.Error("Token refresh failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: token refresh: %v", core.ErrProviderUnavailable, err)
	}

	fresh.UserID = userID
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	if err := g.creds.ReplaceCredential(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to store refreshed credential: %w", err)
	}

	g.logger.Info("Access token refreshed",
		zap.String("user_id", userID),
		zap.Time("expiry", fresh.Expiry))
	return fresh, nil
}
