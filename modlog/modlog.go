// Package modlog streams guild moderation events into a per-guild log
// channel: message edits and deletions, member joins and leaves, bans, role
// and nickname changes, and voice channel movement. Guilds without a
// configured log channel are skipped silently.
package modlog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
)

const (
	colorNeutral = 0x95A5A6
	colorGood    = 0x2ECC71
	colorBad     = 0xE74C3C
	colorChange  = 0xF1C40F
)

// sender is the outbound slice of discordgo; *discordgo.Session satisfies it.
type sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Logger forwards gateway events to each guild's configured log channel.
type Logger struct {
	Session sender
	Config  *store.ConfigStore
}

// Register attaches all gateway handlers to the session. Voice movement is
// observed here too; the voice provisioner keeps its own handler.
func (l *Logger) Register(s *discordgo.Session) {
	s.AddHandler(l.onMessageUpdate)
	s.AddHandler(l.onMessageDelete)
	s.AddHandler(l.onMemberAdd)
	s.AddHandler(l.onMemberRemove)
	s.AddHandler(l.onBanAdd)
	s.AddHandler(l.onBanRemove)
	s.AddHandler(l.onMemberUpdate)
	s.AddHandler(l.onVoiceState)
}

func (l *Logger) channelFor(guildID string) string {
	gc := l.Config.Guild(guildID)
	if gc == nil || gc.ModlogChannel == 0 {
		return ""
	}
	return store.FormatID(gc.ModlogChannel)
}

func (l *Logger) emit(guildID string, embed *discordgo.MessageEmbed) {
	channelID := l.channelFor(guildID)
	if channelID == "" {
		return
	}
	embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if _, err := l.Session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		slog.Warn("modlog send failed", slog.String("guild", guildID), slog.Any("err", err))
	}
}

func userField(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s (<@%s>)", u.Username, u.ID)
}

func trunc(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func (l *Logger) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Message edited",
		Color: colorChange,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Author", Value: userField(m.Author), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", m.ChannelID), Inline: true},
		},
	}
	// Old content is only available while the message sits in the state cache.
	if m.BeforeUpdate != nil && m.BeforeUpdate.Content != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Before", Value: trunc(m.BeforeUpdate.Content, 1000)})
	}
	if m.Content != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "After", Value: trunc(m.Content, 1000)})
	}
	l.emit(m.GuildID, embed)
}

func (l *Logger) onMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Message deleted",
		Color: colorBad,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", m.ChannelID), Inline: true},
		},
	}
	if m.BeforeDelete != nil {
		if m.BeforeDelete.Author != nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Author", Value: userField(m.BeforeDelete.Author), Inline: true})
		}
		if m.BeforeDelete.Content != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Content", Value: trunc(m.BeforeDelete.Content, 1000)})
		}
	}
	l.emit(m.GuildID, embed)
}

func (l *Logger) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	l.emit(m.GuildID, &discordgo.MessageEmbed{
		Title:       "Member joined",
		Description: userField(m.User),
		Color:       colorGood,
	})
}

func (l *Logger) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	l.emit(m.GuildID, &discordgo.MessageEmbed{
		Title:       "Member left",
		Description: userField(m.User),
		Color:       colorNeutral,
	})
}

func (l *Logger) onBanAdd(s *discordgo.Session, b *discordgo.GuildBanAdd) {
	l.emit(b.GuildID, &discordgo.MessageEmbed{
		Title:       "Member banned",
		Description: userField(b.User),
		Color:       colorBad,
	})
}

func (l *Logger) onBanRemove(s *discordgo.Session, b *discordgo.GuildBanRemove) {
	l.emit(b.GuildID, &discordgo.MessageEmbed{
		Title:       "Member unbanned",
		Description: userField(b.User),
		Color:       colorGood,
	})
}

func (l *Logger) onMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.BeforeUpdate == nil {
		return
	}
	if m.Nick != m.BeforeUpdate.Nick {
		l.emit(m.GuildID, &discordgo.MessageEmbed{
			Title: "Nickname changed",
			Color: colorChange,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Member", Value: userField(m.User), Inline: true},
				{Name: "Before", Value: orNone(m.BeforeUpdate.Nick), Inline: true},
				{Name: "After", Value: orNone(m.Nick), Inline: true},
			},
		})
	}
	added, removed := diffRoles(m.BeforeUpdate.Roles, m.Roles)
	for _, r := range added {
		l.emit(m.GuildID, roleChangeEmbed(m.User, r, "Role added", colorGood))
	}
	for _, r := range removed {
		l.emit(m.GuildID, roleChangeEmbed(m.User, r, "Role removed", colorNeutral))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func roleChangeEmbed(u *discordgo.User, roleID, title string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Member", Value: userField(u), Inline: true},
			{Name: "Role", Value: fmt.Sprintf("<@&%s>", roleID), Inline: true},
		},
	}
}

func diffRoles(before, after []string) (added, removed []string) {
	old := make(map[string]bool, len(before))
	for _, r := range before {
		old[r] = true
	}
	cur := make(map[string]bool, len(after))
	for _, r := range after {
		cur[r] = true
		if !old[r] {
			added = append(added, r)
		}
	}
	for _, r := range before {
		if !cur[r] {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func (l *Logger) onVoiceState(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID == s.State.User.ID {
		return
	}
	var before string
	if v.BeforeUpdate != nil {
		before = v.BeforeUpdate.ChannelID
	}
	switch {
	case before == "" && v.ChannelID != "":
		l.emit(v.GuildID, voiceEmbed(v, "Joined voice", fmt.Sprintf("<#%s>", v.ChannelID), colorGood))
	case before != "" && v.ChannelID == "":
		l.emit(v.GuildID, voiceEmbed(v, "Left voice", fmt.Sprintf("<#%s>", before), colorNeutral))
	case before != "" && v.ChannelID != "" && before != v.ChannelID:
		l.emit(v.GuildID, voiceEmbed(v, "Moved voice", fmt.Sprintf("<#%s> → <#%s>", before, v.ChannelID), colorChange))
	}
}

func voiceEmbed(v *discordgo.VoiceStateUpdate, title, detail string, color int) *discordgo.MessageEmbed {
	member := fmt.Sprintf("<@%s>", v.UserID)
	if v.Member != nil && v.Member.User != nil {
		member = userField(v.Member.User)
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Member", Value: member, Inline: true},
			{Name: "Channel", Value: detail, Inline: true},
		},
	}
}
