package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func tokenServer(t *testing.T, callCount *int, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*callCount++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenSourceCaches(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls, 3600)

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	ctx := context.Background()

	tok, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "test-token" {
		t.Errorf("Get() = %q, want test-token", tok)
	}
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint calls = %d, want 1 (cached)", calls)
	}
}

func TestTokenSourceRefreshesInsideMargin(t *testing.T) {
	calls := 0
	// expires_in 30s is inside the 60s safety margin, so every Get re-fetches.
	srv := tokenServer(t, &calls, 30)

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	ctx := context.Background()

	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("token endpoint calls = %d, want 2 (margin breached)", calls)
	}
}

func TestTokenSourceMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Get() error = %v, want ErrNoCredentials", err)
	}
}

func TestTokenSourceInvalidate(t *testing.T) {
	calls := 0
	srv := tokenServer(t, &calls, 3600)

	ts := &TokenSource{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	ctx := context.Background()

	if _, err := ts.Get(ctx); err != nil {
		t.Fatal(err)
	}
	ts.Invalidate()
	if _, err := ts.Get(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("token endpoint calls = %d, want 2 after Invalidate", calls)
	}
}

func TestTokenSourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "id", ClientSecret: "bad", TokenURL: srv.URL}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("Get() expected error on 403")
	}
}
