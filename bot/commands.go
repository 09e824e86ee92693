package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// commandRegistrar is the slice of discordgo used to manage remote command
// registrations; *discordgo.Session satisfies it.
type commandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

var manageGuild int64 = discordgo.PermissionManageGuild

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: required,
	}
}

func channelOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionChannel, Name: name, Description: desc, Required: true,
	}
}

func roleOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionRole, Name: name, Description: desc, Required: true,
	}
}

func sub(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts,
	}
}

// commandDefs is the full remote command surface.
func commandDefs() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "twitch",
			Description:              "Twitch live notification settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				sub("add", "Track a streamer", stringOpt("login", "Twitch login name", true)),
				sub("remove", "Stop tracking a streamer", stringOpt("login", "Twitch login name", true)),
				sub("notify", "Set the announcement channel and ping role",
					channelOpt("channel", "Channel for live announcements"),
					roleOpt("role", "Role to ping")),
				sub("list", "Show tracked streamers"),
			},
		},
		{
			Name:                     "youtube",
			Description:              "YouTube upload notification settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				sub("add", "Track a channel", stringOpt("channel", "Channel id, URL, @handle or search text", true)),
				sub("remove", "Stop tracking a channel", stringOpt("channel", "The value used when adding, or the channel id", true)),
				sub("notify", "Set the announcement channel and ping role",
					channelOpt("channel", "Channel for upload announcements"),
					roleOpt("role", "Role to ping")),
				sub("list", "Show tracked channels"),
			},
		},
		{
			Name:                     "ticket",
			Description:              "Ticket system settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				sub("category", "Set the category new ticket channels go under", channelOpt("category", "Ticket category")),
				sub("panel", "Post the ticket creation panel", channelOpt("channel", "Channel for the panel")),
				sub("archive", "Set the transcript archive channel", channelOpt("channel", "Archive channel")),
				sub("role-add", "Grant a role access to ticket channels", roleOpt("role", "Staff role")),
				sub("role-remove", "Revoke a role's ticket access", roleOpt("role", "Staff role")),
				sub("support-add", "Allow a role to resolve tickets", roleOpt("role", "Support role")),
				sub("support-remove", "Disallow a role from resolving tickets", roleOpt("role", "Support role")),
			},
		},
		{
			Name:                     "modlog",
			Description:              "Moderation log settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				sub("channel", "Set the moderation log channel", channelOpt("channel", "Log channel")),
			},
		},
		{
			Name:                     "voice",
			Description:              "Join-to-create voice settings",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				sub("lobby", "Set the join-to-create lobby channel", channelOpt("channel", "Lobby voice channel")),
			},
		},
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:                     "resync",
			Description:              "Clear and re-register all slash commands",
			DefaultMemberPermissions: &manageGuild,
		},
	}
}

func (b *Bot) registerCommands() (int, error) {
	return registerCommands(b.Session, b.Session.State.User.ID)
}

func registerCommands(reg commandRegistrar, appID string) (int, error) {
	registered, err := reg.ApplicationCommandBulkOverwrite(appID, "", commandDefs())
	if err != nil {
		return 0, err
	}
	slog.Info("commands registered", slog.Int("count", len(registered)))
	return len(registered), nil
}

// resyncCommands drops every remotely-registered command and registers the
// current set, returning how many are live afterwards.
func resyncCommands(reg commandRegistrar, appID string) (int, error) {
	if _, err := reg.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		return 0, fmt.Errorf("clear commands: %w", err)
	}
	return registerCommands(reg, appID)
}
