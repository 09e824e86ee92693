package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	s, err := OpenConfig(path)
	if err != nil {
		t.Fatalf("OpenConfig() error = %v", err)
	}
	if err := s.AddStreamer("g1", "Alice"); err != nil {
		t.Fatalf("AddStreamer() error = %v", err)
	}
	if err := s.SetTwitchNotif("g1", 123, 456); err != nil {
		t.Fatalf("SetTwitchNotif() error = %v", err)
	}
	if err := s.AddYouTubeChannel("g1", "@handle", YouTubeChannel{ChannelID: "UCx", ChannelName: "X", UploadsPlaylistID: "UUx"}); err != nil {
		t.Fatalf("AddYouTubeChannel() error = %v", err)
	}
	if err := s.SetTicketCategory("g1", 789); err != nil {
		t.Fatalf("SetTicketCategory() error = %v", err)
	}

	// Reload from disk and compare.
	s2, err := OpenConfig(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if !reflect.DeepEqual(s.Snapshot(), s2.Snapshot()) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", s2.Snapshot(), s.Snapshot())
	}

	gc := s2.Guild("g1")
	if gc == nil || gc.Twitch == nil {
		t.Fatal("guild config missing after reload")
	}
	if got := gc.Twitch.Streamers; len(got) != 1 || got[0] != "alice" {
		t.Errorf("streamers = %v, want [alice] (case-folded)", got)
	}
	if gc.Twitch.NotifChannel != 123 || gc.Twitch.NotifRole != 456 {
		t.Errorf("twitch notif = %d/%d, want 123/456", gc.Twitch.NotifChannel, gc.Twitch.NotifRole)
	}
}

func TestConfigDuplicateStreamer(t *testing.T) {
	s, err := OpenConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("OpenConfig() error = %v", err)
	}
	if err := s.AddStreamer("g1", "alice"); err != nil {
		t.Fatalf("AddStreamer() error = %v", err)
	}
	if err := s.AddStreamer("g1", "ALICE"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate AddStreamer() error = %v, want ErrExists", err)
	}
	if err := s.RemoveStreamer("g1", "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveStreamer(bob) error = %v, want ErrNotFound", err)
	}
	if err := s.RemoveStreamer("g1", "alice"); err != nil {
		t.Errorf("RemoveStreamer(alice) error = %v", err)
	}
}

func TestConfigCorruptResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenConfig(path)
	if err != nil {
		t.Fatalf("OpenConfig() on corrupt file error = %v, want reset", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Errorf("snapshot not empty after corrupt load: %v", s.Snapshot())
	}
	// Store remains usable.
	if err := s.AddStreamer("g1", "alice"); err != nil {
		t.Errorf("AddStreamer() after reset error = %v", err)
	}
}

func TestConfigSnapshotIsolated(t *testing.T) {
	s, err := OpenConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddStreamer("g1", "alice"); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	snap["g1"].Twitch.Streamers[0] = "mallory"
	if got := s.Guild("g1").Twitch.Streamers[0]; got != "alice" {
		t.Errorf("mutating snapshot leaked into store: %q", got)
	}
}

func TestConfigConcurrentMutations(t *testing.T) {
	s, err := OpenConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.AddTicketRole("g1", uint64(1000+n))
		}(i)
	}
	wg.Wait()
	if got := len(s.Guild("g1").TicketRoles); got != 8 {
		t.Errorf("ticket roles = %d, want 8", got)
	}
}

func TestStateRoundTripAndRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenState(path)
	if err != nil {
		t.Fatalf("OpenState() error = %v", err)
	}
	if err := s.Update(func(d StateDoc) {
		d.Stream("g1", "alice").Notified = "s1"
		d.Channel("g1", "@handle").LastVideo = "v1"
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	s2, err := OpenState(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Snapshot().Stream("g1", "alice").Notified; got != "s1" {
		t.Errorf("notified = %q, want s1", got)
	}
	if got := s2.Snapshot().Channel("g1", "@handle").LastVideo; got != "v1" {
		t.Errorf("last_video = %q, want v1", got)
	}

	if err := s2.RemoveStream("g1", "alice"); err != nil {
		t.Fatal(err)
	}
	snap := s2.Snapshot()
	if gs := snap["g1"]; gs != nil {
		if _, ok := gs.Twitch["alice"]; ok {
			t.Error("stream state not removed")
		}
	}
}

func TestTicketUniqueness(t *testing.T) {
	s, err := OpenTickets(filepath.Join(t.TempDir(), "tickets.json"))
	if err != nil {
		t.Fatalf("OpenTickets() error = %v", err)
	}
	first := &Ticket{ID: "t1", Owner: 42, Channel: 1, Type: "support", Status: TicketOpen, CreatedAt: time.Now().UTC()}
	if err := s.Create("g1", first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second := &Ticket{ID: "t2", Owner: 42, Channel: 2, Type: "support", Status: TicketOpen, CreatedAt: time.Now().UTC()}
	if err := s.Create("g1", second); !errors.Is(err, ErrTicketExists) {
		t.Errorf("second Create() error = %v, want ErrTicketExists", err)
	}
	// Different family is fine.
	third := &Ticket{ID: "t3", Owner: 42, Channel: 3, Type: "bug", Status: TicketOpen, CreatedAt: time.Now().UTC()}
	if err := s.Create("g1", third); err != nil {
		t.Errorf("different-family Create() error = %v", err)
	}
	// Same family, different guild is fine.
	if err := s.Create("g2", &Ticket{ID: "t4", Owner: 42, Channel: 4, Type: "support", Status: TicketOpen}); err != nil {
		t.Errorf("different-guild Create() error = %v", err)
	}
}

func TestTicketLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	s, err := OpenTickets(path)
	if err != nil {
		t.Fatal(err)
	}
	tk := &Ticket{ID: "t1", Owner: 42, Channel: 7, Type: "valorant", Status: TicketOpen, CreatedAt: time.Now().UTC()}
	if err := s.Create("g1", tk); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC()
	if err := s.Resolve("g1", "t1", 99, "fixed", at); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got := s.Get("g1", "t1")
	if got.Status != TicketResolved || got.Resolver != 99 || got.ResolutionNote != "fixed" {
		t.Errorf("resolved ticket = %+v", got)
	}
	// No resolve of an already-resolved ticket.
	if err := s.Resolve("g1", "t1", 99, "again", at); err == nil {
		t.Error("Resolve() on resolved ticket succeeded, want error")
	}

	// Survives reload.
	s2, err := OpenTickets(path)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Get("g1", "t1") == nil {
		t.Fatal("resolved ticket lost on reload")
	}
	if s2.ByChannel("g1", 7) == nil {
		t.Error("ByChannel() lookup failed")
	}

	if err := s2.Delete("g1", "t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s2.Get("g1", "t1") != nil {
		t.Error("ticket still present after Delete()")
	}
}

func TestTicketSetAnswer(t *testing.T) {
	s, err := OpenTickets(filepath.Join(t.TempDir(), "tickets.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create("g1", &Ticket{ID: "t1", Owner: 1, Type: "applications", Status: TicketOpen}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAnswer("g1", "t1", "application", "I main controller agents"); err != nil {
		t.Fatalf("SetAnswer() error = %v", err)
	}
	if got := s.Get("g1", "t1").Answers["application"]; got != "I main controller agents" {
		t.Errorf("answer = %q", got)
	}
	if err := s.SetAnswer("g1", "missing", "application", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetAnswer() on missing ticket error = %v, want ErrNotFound", err)
	}
}

func TestTicketExpiredResolved(t *testing.T) {
	s, err := OpenTickets(filepath.Join(t.TempDir(), "tickets.json"))
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().UTC().Add(-31 * 24 * time.Hour)
	fresh := time.Now().UTC()
	_ = s.Create("g1", &Ticket{ID: "t1", Owner: 1, Type: "support", Status: TicketOpen})
	_ = s.Resolve("g1", "t1", 2, "", old)
	_ = s.Create("g1", &Ticket{ID: "t2", Owner: 3, Type: "support", Status: TicketOpen})
	_ = s.Resolve("g1", "t2", 2, "", fresh)

	expired := s.ExpiredResolved(time.Now().UTC().Add(-30 * 24 * time.Hour))
	if len(expired["g1"]) != 1 || expired["g1"][0].ID != "t1" {
		t.Errorf("expired = %+v, want only t1", expired)
	}
}
