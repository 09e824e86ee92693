package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/tickets"
)

const apiTimeout = 15 * time.Second

func ephemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("interaction respond failed", slog.Any("err", err))
	}
}

// optionMap flattens a subcommand's options by name.
func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "ping":
		ephemeral(s, i, fmt.Sprintf("Pong! Gateway latency %s.", s.HeartbeatLatency().Round(time.Millisecond)))
		return
	}
	if !isAdmin(i) {
		ephemeral(s, i, "You need the Manage Server permission for that.")
		return
	}
	switch data.Name {
	case "twitch":
		b.handleTwitch(s, i, data)
	case "youtube":
		b.handleYouTube(s, i, data)
	case "ticket":
		b.handleTicketAdmin(s, i, data)
	case "modlog":
		b.handleModlog(s, i, data)
	case "voice":
		b.handleVoice(s, i, data)
	case "resync":
		count, err := resyncCommands(s, s.State.User.ID)
		if err != nil {
			ephemeral(s, i, "Resync failed: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Re-registered %d commands.", count))
	default:
		ephemeral(s, i, "Unknown command.")
	}
}

func (b *Bot) handleTwitch(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	switch sub.Name {
	case "add":
		login := strings.TrimSpace(opts["login"].StringValue())
		if err := b.Config.AddStreamer(i.GuildID, login); err != nil {
			if errors.Is(err, store.ErrExists) {
				ephemeral(s, i, fmt.Sprintf("**%s** is already tracked.", login))
				return
			}
			ephemeral(s, i, "Could not add streamer: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Now tracking **%s**.", strings.ToLower(login)))
	case "remove":
		login := strings.TrimSpace(opts["login"].StringValue())
		if err := b.Config.RemoveStreamer(i.GuildID, login); err != nil {
			ephemeral(s, i, fmt.Sprintf("**%s** is not tracked.", login))
			return
		}
		// Drop dedup state so a later re-add starts fresh.
		if err := b.State.RemoveStream(i.GuildID, strings.ToLower(login)); err != nil {
			slog.Warn("stream state cleanup failed", slog.String("login", login), slog.Any("err", err))
		}
		ephemeral(s, i, fmt.Sprintf("Stopped tracking **%s**.", strings.ToLower(login)))
	case "notify":
		ch := opts["channel"].ChannelValue(s)
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.SetTwitchNotif(i.GuildID, store.ParseID(ch.ID), store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Could not save: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Live announcements go to <#%s> pinging <@&%s>.", ch.ID, role.ID))
	case "list":
		gc := b.Config.Guild(i.GuildID)
		if gc == nil || gc.Twitch == nil || len(gc.Twitch.Streamers) == 0 {
			ephemeral(s, i, "No streamers tracked.")
			return
		}
		ephemeral(s, i, "Tracked streamers: "+strings.Join(gc.Twitch.Streamers, ", "))
	}
}

func (b *Bot) handleYouTube(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	switch sub.Name {
	case "add":
		raw := strings.TrimSpace(opts["channel"].StringValue())
		if b.YouTube == nil {
			ephemeral(s, i, "YouTube tracking is not configured on this instance.")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		id, err := b.YouTube.ResolveChannel(ctx, raw)
		if err != nil {
			ephemeral(s, i, fmt.Sprintf("Could not find a channel for %q.", raw))
			return
		}
		info, err := b.YouTube.GetChannelInfo(ctx, id)
		if err != nil {
			ephemeral(s, i, "Channel lookup failed: "+err.Error())
			return
		}
		err = b.Config.AddYouTubeChannel(i.GuildID, raw, store.YouTubeChannel{
			ChannelID:         info.ID,
			ChannelName:       info.Title,
			UploadsPlaylistID: info.UploadsPlaylistID,
		})
		if err != nil {
			if errors.Is(err, store.ErrExists) {
				ephemeral(s, i, fmt.Sprintf("**%s** is already tracked.", info.Title))
				return
			}
			ephemeral(s, i, "Could not add channel: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Now tracking **%s**.", info.Title))
	case "remove":
		raw := strings.TrimSpace(opts["channel"].StringValue())
		removedKey, err := b.Config.RemoveYouTubeChannel(i.GuildID, raw)
		if err != nil {
			ephemeral(s, i, fmt.Sprintf("%q is not tracked.", raw))
			return
		}
		if err := b.State.RemoveChannel(i.GuildID, removedKey); err != nil {
			slog.Warn("channel state cleanup failed", slog.String("channel", removedKey), slog.Any("err", err))
		}
		ephemeral(s, i, "Stopped tracking that channel.")
	case "notify":
		ch := opts["channel"].ChannelValue(s)
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.SetYouTubeNotif(i.GuildID, store.ParseID(ch.ID), store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Could not save: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Upload announcements go to <#%s> pinging <@&%s>.", ch.ID, role.ID))
	case "list":
		gc := b.Config.Guild(i.GuildID)
		if gc == nil || gc.YouTube == nil || len(gc.YouTube.Channels) == 0 {
			ephemeral(s, i, "No channels tracked.")
			return
		}
		var names []string
		for _, ch := range gc.YouTube.Channels {
			names = append(names, ch.ChannelName)
		}
		ephemeral(s, i, "Tracked channels: "+strings.Join(names, ", "))
	}
}

func (b *Bot) handleTicketAdmin(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	switch sub.Name {
	case "category":
		cat := opts["category"].ChannelValue(s)
		if cat.Type != discordgo.ChannelTypeGuildCategory {
			ephemeral(s, i, "That channel is not a category.")
			return
		}
		if err := b.Config.SetTicketCategory(i.GuildID, store.ParseID(cat.ID)); err != nil {
			ephemeral(s, i, "Could not save: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Tickets will open under **%s**.", cat.Name))
	case "panel":
		ch := opts["channel"].ChannelValue(s)
		if err := b.postPanel(s, i.GuildID, ch.ID); err != nil {
			ephemeral(s, i, "Could not post panel: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Panel posted in <#%s>.", ch.ID))
	case "archive":
		ch := opts["channel"].ChannelValue(s)
		if err := b.Config.SetTicketArchiveChannel(i.GuildID, store.ParseID(ch.ID)); err != nil {
			ephemeral(s, i, "Could not save: "+err.Error())
			return
		}
		ephemeral(s, i, fmt.Sprintf("Transcripts will be archived in <#%s>.", ch.ID))
	case "role-add":
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.AddTicketRole(i.GuildID, store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Role already has access.")
			return
		}
		ephemeral(s, i, fmt.Sprintf("<@&%s> can now see ticket channels.", role.ID))
	case "role-remove":
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.RemoveTicketRole(i.GuildID, store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Role did not have access.")
			return
		}
		ephemeral(s, i, fmt.Sprintf("<@&%s> no longer sees ticket channels.", role.ID))
	case "support-add":
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.AddSupportRole(i.GuildID, store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Role can already resolve tickets.")
			return
		}
		ephemeral(s, i, fmt.Sprintf("<@&%s> can now resolve tickets.", role.ID))
	case "support-remove":
		role := opts["role"].RoleValue(nil, i.GuildID)
		if err := b.Config.RemoveSupportRole(i.GuildID, store.ParseID(role.ID)); err != nil {
			ephemeral(s, i, "Role could not resolve tickets.")
			return
		}
		ephemeral(s, i, fmt.Sprintf("<@&%s> can no longer resolve tickets.", role.ID))
	}
}

// postPanel sends the ticket creation panel and records its channel.
func (b *Bot) postPanel(s *discordgo.Session, guildID, channelID string) error {
	var rows []discordgo.MessageComponent
	row := discordgo.ActionsRow{}
	for _, family := range store.TicketFamilies {
		if len(row.Components) == 5 {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    panelLabel(family),
			Style:    discordgo.SecondaryButton,
			CustomID: tickets.CustomIDCreatePrefix + family,
		})
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}

	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Open a ticket",
			Description: "Pick a category below and a private channel will be opened for you.",
			Color:       0x3498DB,
		}},
		Components: rows,
	})
	if err != nil {
		return err
	}
	return b.Config.SetTicketPanelChannel(guildID, store.ParseID(channelID))
}

func panelLabel(family string) string {
	switch family {
	case "support":
		return "Support"
	case "bug":
		return "Bug report"
	case "player":
		return "Report a player"
	case "feedback":
		return "Feedback"
	case "applications":
		return "Apply"
	case "valorant":
		return "Valorant"
	}
	return family
}

func (b *Bot) handleModlog(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	if sub.Name != "channel" {
		return
	}
	ch := opts["channel"].ChannelValue(s)
	if err := b.Config.SetModlogChannel(i.GuildID, store.ParseID(ch.ID)); err != nil {
		ephemeral(s, i, "Could not save: "+err.Error())
		return
	}
	ephemeral(s, i, fmt.Sprintf("Moderation events will be logged in <#%s>.", ch.ID))
}

func (b *Bot) handleVoice(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	if sub.Name != "lobby" {
		return
	}
	ch := opts["channel"].ChannelValue(s)
	if ch.Type != discordgo.ChannelTypeGuildVoice {
		ephemeral(s, i, "That channel is not a voice channel.")
		return
	}
	if err := b.Config.SetVoiceLobby(i.GuildID, store.ParseID(ch.ID)); err != nil {
		ephemeral(s, i, "Could not save: "+err.Error())
		return
	}
	ephemeral(s, i, fmt.Sprintf("Joining **%s** now creates a personal channel.", ch.Name))
}
