// Package voice implements join-to-create: a member entering the configured
// lobby voice channel gets a personal channel in the same category and is
// moved into it; the channel is deleted once its last occupant leaves.
package voice

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
)

// session is the slice of discordgo the provisioner calls; *discordgo.Session
// satisfies it.
type session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Provisioner tracks the temporary channels it created. Only tracked channels
// are ever deleted, so hand-made voice channels are never touched.
type Provisioner struct {
	Session session
	Config  *store.ConfigStore
	// Occupants reports how many members currently sit in a voice channel.
	// Register wires it to the gateway state cache.
	Occupants func(guildID, channelID string) int

	mu      sync.Mutex
	created map[string]bool
}

func NewProvisioner(s session, cfg *store.ConfigStore) *Provisioner {
	return &Provisioner{Session: s, Config: cfg, created: map[string]bool{}}
}

// Register attaches the voice-state handler.
func (p *Provisioner) Register(s *discordgo.Session) {
	if p.Occupants == nil {
		p.Occupants = func(guildID, channelID string) int {
			g, err := s.State.Guild(guildID)
			if err != nil {
				return 0
			}
			n := 0
			for _, vs := range g.VoiceStates {
				if vs.ChannelID == channelID {
					n++
				}
			}
			return n
		}
	}
	s.AddHandler(func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		p.HandleVoiceState(v)
	})
}

// HandleVoiceState reacts to one voice transition: lobby joins provision a
// channel, departures from tracked channels trigger empty-channel cleanup.
func (p *Provisioner) HandleVoiceState(v *discordgo.VoiceStateUpdate) {
	gc := p.Config.Guild(v.GuildID)
	if gc == nil || gc.VoiceLobby == 0 {
		return
	}
	lobby := store.FormatID(gc.VoiceLobby)

	if v.BeforeUpdate != nil && v.BeforeUpdate.ChannelID != "" && v.BeforeUpdate.ChannelID != v.ChannelID {
		p.cleanupIfEmpty(v.GuildID, v.BeforeUpdate.ChannelID)
	}
	if v.ChannelID == lobby {
		p.provision(v, lobby)
	}
}

func (p *Provisioner) provision(v *discordgo.VoiceStateUpdate, lobby string) {
	lobbyCh, err := p.Session.Channel(lobby)
	if err != nil {
		slog.Warn("lobby channel lookup failed", slog.String("channel", lobby), slog.Any("err", err))
		return
	}
	name := "voice"
	if v.Member != nil {
		if v.Member.Nick != "" {
			name = v.Member.Nick
		} else if v.Member.User != nil {
			name = v.Member.User.Username
		}
	}
	ch, err := p.Session.GuildChannelCreateComplex(v.GuildID, discordgo.GuildChannelCreateData{
		Name:     fmt.Sprintf("%s's channel", name),
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: lobbyCh.ParentID,
	})
	if err != nil {
		slog.Warn("voice channel create failed", slog.String("guild", v.GuildID), slog.Any("err", err))
		return
	}
	p.mu.Lock()
	p.created[ch.ID] = true
	p.mu.Unlock()

	if err := p.Session.GuildMemberMove(v.GuildID, v.UserID, &ch.ID); err != nil {
		slog.Warn("member move failed", slog.String("user", v.UserID), slog.Any("err", err))
		// Nobody ever lands in it; clean up now.
		p.cleanup(ch.ID)
		return
	}
	slog.Info("voice channel provisioned",
		slog.String("guild", v.GuildID), slog.String("channel", ch.ID), slog.String("user", v.UserID))
}

// cleanupIfEmpty deletes a tracked channel once its occupancy reached zero.
func (p *Provisioner) cleanupIfEmpty(guildID, channelID string) {
	p.mu.Lock()
	tracked := p.created[channelID]
	p.mu.Unlock()
	if !tracked {
		return
	}
	if p.Occupants != nil && p.Occupants(guildID, channelID) > 0 {
		return
	}
	p.cleanup(channelID)
}

func (p *Provisioner) cleanup(channelID string) {
	if _, err := p.Session.ChannelDelete(channelID); err != nil {
		slog.Warn("voice channel delete failed", slog.String("channel", channelID), slog.Any("err", err))
		return
	}
	p.forget(channelID)
	slog.Info("voice channel removed", slog.String("channel", channelID))
}

func (p *Provisioner) forget(channelID string) {
	p.mu.Lock()
	delete(p.created, channelID)
	p.mu.Unlock()
}
