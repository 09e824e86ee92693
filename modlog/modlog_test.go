package modlog

import (
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
)

type recordingSender struct {
	sent map[string][]*discordgo.MessageEmbed
}

func (r *recordingSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if r.sent == nil {
		r.sent = map[string][]*discordgo.MessageEmbed{}
	}
	r.sent[channelID] = append(r.sent[channelID], embed)
	return &discordgo.Message{}, nil
}

func newTestLogger(t *testing.T) (*Logger, *recordingSender) {
	t.Helper()
	cfg, err := store.OpenConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	rs := &recordingSender{}
	return &Logger{Session: rs, Config: cfg}, rs
}

func newSession() *discordgo.Session {
	s := &discordgo.Session{State: discordgo.NewState()}
	s.State.User = &discordgo.User{ID: "999"}
	return s
}

func TestUnconfiguredGuildSkipped(t *testing.T) {
	l, rs := newTestLogger(t)
	l.onMemberAdd(newSession(), &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1", User: &discordgo.User{ID: "1", Username: "alice"},
	}})
	if len(rs.sent) != 0 {
		t.Fatalf("sent %v for unconfigured guild", rs.sent)
	}
}

func TestMemberJoinAndLeave(t *testing.T) {
	l, rs := newTestLogger(t)
	if err := l.Config.SetModlogChannel("g1", 700); err != nil {
		t.Fatal(err)
	}
	s := newSession()
	l.onMemberAdd(s, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1", User: &discordgo.User{ID: "1", Username: "alice"},
	}})
	l.onMemberRemove(s, &discordgo.GuildMemberRemove{Member: &discordgo.Member{
		GuildID: "g1", User: &discordgo.User{ID: "1", Username: "alice"},
	}})
	embeds := rs.sent["700"]
	if len(embeds) != 2 {
		t.Fatalf("sent %d embeds, want 2", len(embeds))
	}
	if embeds[0].Title != "Member joined" || embeds[1].Title != "Member left" {
		t.Fatalf("titles = %q, %q", embeds[0].Title, embeds[1].Title)
	}
}

func TestMessageEditCarriesBeforeAndAfter(t *testing.T) {
	l, rs := newTestLogger(t)
	if err := l.Config.SetModlogChannel("g1", 700); err != nil {
		t.Fatal(err)
	}
	l.onMessageUpdate(newSession(), &discordgo.MessageUpdate{
		Message: &discordgo.Message{
			GuildID: "g1", ChannelID: "10", Content: "new text",
			Author: &discordgo.User{ID: "1", Username: "alice"},
		},
		BeforeUpdate: &discordgo.Message{Content: "old text"},
	})
	embeds := rs.sent["700"]
	if len(embeds) != 1 {
		t.Fatalf("sent %d embeds", len(embeds))
	}
	var before, after string
	for _, f := range embeds[0].Fields {
		switch f.Name {
		case "Before":
			before = f.Value
		case "After":
			after = f.Value
		}
	}
	if before != "old text" || after != "new text" {
		t.Fatalf("before=%q after=%q", before, after)
	}
}

func TestBotEditsIgnored(t *testing.T) {
	l, rs := newTestLogger(t)
	if err := l.Config.SetModlogChannel("g1", 700); err != nil {
		t.Fatal(err)
	}
	l.onMessageUpdate(newSession(), &discordgo.MessageUpdate{
		Message: &discordgo.Message{
			GuildID: "g1", ChannelID: "10", Content: "x",
			Author: &discordgo.User{ID: "999", Username: "bot", Bot: true},
		},
	})
	if len(rs.sent) != 0 {
		t.Fatal("bot edit was logged")
	}
}

func TestRoleDiff(t *testing.T) {
	added, removed := diffRoles([]string{"a", "b"}, []string{"b", "c", "d"})
	if len(added) != 2 || added[0] != "c" || added[1] != "d" {
		t.Fatalf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed = %v", removed)
	}
}

func TestMemberUpdateEmitsRoleAndNickChanges(t *testing.T) {
	l, rs := newTestLogger(t)
	if err := l.Config.SetModlogChannel("g1", 700); err != nil {
		t.Fatal(err)
	}
	l.onMemberUpdate(newSession(), &discordgo.GuildMemberUpdate{
		Member: &discordgo.Member{
			GuildID: "g1", User: &discordgo.User{ID: "1", Username: "alice"},
			Nick: "Al", Roles: []string{"r1", "r2"},
		},
		BeforeUpdate: &discordgo.Member{Nick: "", Roles: []string{"r1", "r3"}},
	})
	titles := map[string]int{}
	for _, e := range rs.sent["700"] {
		titles[e.Title]++
	}
	if titles["Nickname changed"] != 1 || titles["Role added"] != 1 || titles["Role removed"] != 1 {
		t.Fatalf("titles = %v", titles)
	}
}

func TestVoiceJoinLeaveMove(t *testing.T) {
	l, rs := newTestLogger(t)
	if err := l.Config.SetModlogChannel("g1", 700); err != nil {
		t.Fatal(err)
	}
	s := newSession()
	l.onVoiceState(s, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: "1", ChannelID: "20"},
	})
	l.onVoiceState(s, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "g1", UserID: "1", ChannelID: "21"},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "20"},
	})
	l.onVoiceState(s, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "g1", UserID: "1", ChannelID: ""},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "21"},
	})
	// The bot's own movement is not logged.
	l.onVoiceState(s, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: "999", ChannelID: "20"},
	})
	embeds := rs.sent["700"]
	if len(embeds) != 3 {
		t.Fatalf("sent %d embeds, want 3", len(embeds))
	}
	want := []string{"Joined voice", "Moved voice", "Left voice"}
	for i, w := range want {
		if embeds[i].Title != w {
			t.Errorf("embed %d title = %q, want %q", i, embeds[i].Title, w)
		}
	}
}
