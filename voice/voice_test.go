package voice

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
)

type fakeSession struct {
	channels map[string]*discordgo.Channel
	nextID   int
	created  []*discordgo.Channel
	deleted  []string
	moves    map[string]string
	moveErr  error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		channels: map[string]*discordgo.Channel{},
		nextID:   100,
		moves:    map[string]string{},
	}
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

func (f *fakeSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.nextID++
	ch := &discordgo.Channel{ID: fmt.Sprint(f.nextID), Name: data.Name, ParentID: data.ParentID, GuildID: guildID, Type: data.Type}
	f.channels[ch.ID] = ch
	f.created = append(f.created, ch)
	return ch, nil
}

func (f *fakeSession) GuildMemberMove(guildID, userID string, channelID *string, _ ...discordgo.RequestOption) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves[userID] = *channelID
	return nil
}

func (f *fakeSession) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.deleted = append(f.deleted, channelID)
	ch := f.channels[channelID]
	delete(f.channels, channelID)
	return ch, nil
}

func newTestProvisioner(t *testing.T) (*Provisioner, *fakeSession) {
	t.Helper()
	cfg, err := store.OpenConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	fs := newFakeSession()
	fs.channels["50"] = &discordgo.Channel{ID: "50", ParentID: "40", Type: discordgo.ChannelTypeGuildVoice}
	if err := cfg.SetVoiceLobby("g1", 50); err != nil {
		t.Fatal(err)
	}
	p := NewProvisioner(fs, cfg)
	p.Occupants = func(string, string) int { return 0 }
	return p, fs
}

func join(user, channel string, before string) *discordgo.VoiceStateUpdate {
	v := &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID: "g1", UserID: user, ChannelID: channel,
			Member: &discordgo.Member{User: &discordgo.User{ID: user, Username: "alice"}},
		},
	}
	if before != "" {
		v.BeforeUpdate = &discordgo.VoiceState{GuildID: "g1", ChannelID: before}
	}
	return v
}

func TestLobbyJoinProvisionsAndMoves(t *testing.T) {
	p, fs := newTestProvisioner(t)
	p.HandleVoiceState(join("u1", "50", ""))

	if len(fs.created) != 1 {
		t.Fatalf("created %d channels", len(fs.created))
	}
	ch := fs.created[0]
	if ch.Name != "alice's channel" || ch.ParentID != "40" || ch.Type != discordgo.ChannelTypeGuildVoice {
		t.Fatalf("channel = %+v", ch)
	}
	if fs.moves["u1"] != ch.ID {
		t.Fatalf("member moved to %q, want %q", fs.moves["u1"], ch.ID)
	}
}

func TestEmptyTrackedChannelDeleted(t *testing.T) {
	p, fs := newTestProvisioner(t)
	p.HandleVoiceState(join("u1", "50", ""))
	created := fs.created[0].ID

	p.HandleVoiceState(join("u1", "", created))
	if len(fs.deleted) != 1 || fs.deleted[0] != created {
		t.Fatalf("deleted = %v, want [%s]", fs.deleted, created)
	}
}

func TestOccupiedChannelKept(t *testing.T) {
	p, fs := newTestProvisioner(t)
	p.HandleVoiceState(join("u1", "50", ""))
	created := fs.created[0].ID

	p.Occupants = func(_, channelID string) int {
		if channelID == created {
			return 1
		}
		return 0
	}
	p.HandleVoiceState(join("u1", "", created))
	if len(fs.deleted) != 0 {
		t.Fatalf("deleted occupied channel: %v", fs.deleted)
	}
}

func TestUntrackedChannelNeverDeleted(t *testing.T) {
	p, fs := newTestProvisioner(t)
	fs.channels["60"] = &discordgo.Channel{ID: "60", Type: discordgo.ChannelTypeGuildVoice}
	p.HandleVoiceState(join("u1", "", "60"))
	if len(fs.deleted) != 0 {
		t.Fatalf("deleted hand-made channel: %v", fs.deleted)
	}
}

func TestMoveFailureRollsBack(t *testing.T) {
	p, fs := newTestProvisioner(t)
	fs.moveErr = errors.New("member left already")
	p.HandleVoiceState(join("u1", "50", ""))
	if len(fs.created) != 1 || len(fs.deleted) != 1 {
		t.Fatalf("created=%d deleted=%d, want orphan cleaned up", len(fs.created), len(fs.deleted))
	}
}

func TestUnconfiguredGuildIgnored(t *testing.T) {
	p, fs := newTestProvisioner(t)
	v := join("u1", "50", "")
	v.GuildID = "g2"
	p.HandleVoiceState(v)
	if len(fs.created) != 0 {
		t.Fatal("provisioned for unconfigured guild")
	}
}
