package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "stored-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthRefresherSuccess(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	r := NewOAuthRefresher("id", "secret", srv.URL)

	cred, err := r.Refresh(context.Background(), &core.Credential{UserID: "u1", RefreshToken: "stored-refresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.Expiry, time.Minute)
}

func TestOAuthRefresherRejected(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Token has been revoked."}`)
	r := NewOAuthRefresher("id", "secret", srv.URL)

	_, err := r.Refresh(context.Background(), &core.Credential{UserID: "u1", RefreshToken: "stored-refresh"})
	assert.ErrorIs(t, err, ErrRefreshRejected)
}

func TestOAuthRefresherServerError(t *testing.T) {
	srv := tokenServer(t, http.StatusServiceUnavailable, `{"error":"backend_error"}`)
	r := NewOAuthRefresher("id", "secret", srv.URL)

	_, err := r.Refresh(context.Background(), &core.Credential{UserID: "u1", RefreshToken: "stored-refresh"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshRejected)
}
