package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GmailReadOnlyScope is the only scope requested from users
const GmailReadOnlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// OAuthRefresher refreshes Google credentials through the OAuth2 token endpoint
type OAuthRefresher struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuthRefresher creates a refresher for the given OAuth client.
// A non-empty tokenURL overrides the Google endpoint.
func NewOAuthRefresher(clientID, clientSecret, tokenURL string) *OAuthRefresher {
	endpoint := google.Endpoint
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}
	return &OAuthRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{GmailReadOnlyScope},
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Refresh exchanges the stored refresh token for a new access token
func (r *OAuthRefresher) Refresh(ctx context.Context, cred *core.Credential) (*core.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	// an already expired token forces the source to hit the token endpoint
	src := r.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500 &&
			rerr.Response.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, rerr.Error())
		}
		return nil, err
	}

	return &core.Credential{
		UserID:       cred.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}
