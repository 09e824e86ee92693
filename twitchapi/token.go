package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// expiryMargin is how long before the server-reported expiry a cached token
// is considered stale.
const expiryMargin = 60 * time.Second

// ErrNoCredentials is returned when the client id/secret were never supplied.
// The poller treats it as "Twitch disabled", not as a failure.
var ErrNoCredentials = errors.New("missing twitch client id/secret")

// TokenSource fetches and caches a Twitch app access (client credentials)
// token. The OAuth2 exchange itself is delegated to
// golang.org/x/oauth2/clientcredentials; this wrapper adds the cache with the
// 60-second safety margin and per-call context cancellation.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string       // override for tests; defaults to the Twitch endpoint
	HTTPClient   *http.Client // override for tests

	mu    sync.Mutex
	token *oauth2.Token
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", ErrNoCredentials
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != nil && time.Until(ts.token.Expiry) > expiryMargin {
		return ts.token.AccessToken, nil
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	conf := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := conf.Token(ctx)
	if err != nil {
		return "", err
	}
	ts.token = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Get re-fetches. Used after a
// 401 from Helix, which means the token was revoked server-side.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = nil
	ts.mu.Unlock()
}
