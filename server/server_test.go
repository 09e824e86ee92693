package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testStatus(ready bool) StatusFunc {
	tick := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return func() Status {
		return Status{
			Ready:            ready,
			Guilds:           2,
			TrackedStreamers: 3,
			TrackedChannels:  1,
			OpenTickets:      4,
			LastTwitchTick:   &tick,
		}
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(true)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if corr := resp.Header.Get("X-Correlation-ID"); corr == "" {
		t.Fatal("no correlation id header")
	}
}

func TestCorrelationIDReused(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(true)))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Fatalf("correlation id = %q, want corr-123", got)
	}
}

func TestStatusReady(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(true)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if !s.Ready || s.TrackedStreamers != 3 || s.OpenTickets != 4 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.LastTwitchTick == nil || s.LastYouTubeTick != nil {
		t.Fatalf("tick times = %v, %v", s.LastTwitchTick, s.LastYouTubeTick)
	}
}

func TestStatusNotReady(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(false)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(true)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv := httptest.NewServer(NewMux(testStatus(true)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
