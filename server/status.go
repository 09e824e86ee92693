package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Status is the point-in-time snapshot served at /status.
type Status struct {
	Ready            bool       `json:"ready"`
	Guilds           int        `json:"guilds"`
	TrackedStreamers int        `json:"tracked_streamers"`
	TrackedChannels  int        `json:"tracked_channels"`
	OpenTickets      int        `json:"open_tickets"`
	TwitchErrors     int        `json:"twitch_errors"`
	YouTubeErrors    int        `json:"youtube_errors"`
	LastTwitchTick   *time.Time `json:"last_twitch_tick,omitempty"`
	LastYouTubeTick  *time.Time `json:"last_youtube_tick,omitempty"`
}

// StatusFunc supplies the current snapshot; wired up in main.
type StatusFunc func() Status

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleStatus(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s := status()
		w.Header().Set("Content-Type", "application/json")
		if !s.Ready {
			// Not an error: the gateway session is still coming up.
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(s); err != nil {
			slog.Warn("status encode failed", slog.Any("err", err))
		}
	}
}
