// Package twitchapi contains minimal helpers to query Twitch Helix for live
// streams, using a cached app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const helixStreamsURL = "https://api.twitch.tv/helix/streams"

// Stream is one live broadcast. SessionID is Twitch's per-broadcast stream id:
// stable for the duration of a broadcast, different after a restart, which is
// what makes it usable for at-most-once notification per session.
type Stream struct {
	SessionID    string
	Login        string
	UserName     string
	Title        string
	Game         string
	ViewerCount  int
	ThumbnailURL string // template with {width}x{height} placeholders
	StartedAt    time.Time
}

// Client queries Helix with an app access token.
type Client struct {
	TokenSource *TokenSource
	ClientID    string
	HTTPClient  *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// GetLiveStream returns the live stream for a login, or nil when the streamer
// is offline. Transport and auth failures are returned as errors; the caller
// treats them as "unknown, retry next tick" and never advances state on them.
func (c *Client) GetLiveStream(ctx context.Context, login string) (*Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixStreamsURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("user_login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked server-side; next call fetches a fresh one.
		c.TokenSource.Invalidate()
		return nil, fmt.Errorf("twitch streams request unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch streams request failed: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			ID           string    `json:"id"`
			UserLogin    string    `json:"user_login"`
			UserName     string    `json:"user_name"`
			GameName     string    `json:"game_name"`
			Title        string    `json:"title"`
			ViewerCount  int       `json:"viewer_count"`
			ThumbnailURL string    `json:"thumbnail_url"`
			StartedAt    time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	d := body.Data[0]
	return &Stream{
		SessionID:    d.ID,
		Login:        d.UserLogin,
		UserName:     d.UserName,
		Title:        d.Title,
		Game:         d.GameName,
		ViewerCount:  d.ViewerCount,
		ThumbnailURL: d.ThumbnailURL,
		StartedAt:    d.StartedAt,
	}, nil
}
