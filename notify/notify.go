// Package notify formats live-stream and upload events into rich messages and
// delivers them to the configured guild channel. Delivery success is the sole
// precondition for advancing notification state, so Dispatch reports a plain
// boolean the pollers gate on.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/telemetry"
	"github.com/tetherbyte/guildwatch/twitchapi"
	"github.com/tetherbyte/guildwatch/youtubeapi"
)

const (
	colorTwitch  = 0x9146FF
	colorYouTube = 0xFF0000
)

// Session is the slice of discordgo the dispatcher needs; *discordgo.Session
// satisfies it.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Event is a formatted notification ready for delivery.
type Event struct {
	Platform string // metrics label: "twitch" | "youtube"
	URL      string
	Text     string // plain-text fallback body, URL included
	Embed    *discordgo.MessageEmbed
}

// Dispatcher delivers events.
type Dispatcher struct {
	Session   Session
	BotUserID string
}

// Dispatch sends the event to channelID, mentioning roleID (optional) as
// leading content. It returns true only when a user-visible message went out:
//   - no send permission: log, false
//   - no embed permission: plain-text fallback with the URL, true on success
//   - any delivery error: log, false
func (d *Dispatcher) Dispatch(channelID, roleID string, ev *Event) bool {
	content := ""
	if roleID != "" && roleID != "0" {
		content = fmt.Sprintf("<@&%s>", roleID)
	}

	perms, err := d.Session.UserChannelPermissions(d.BotUserID, channelID)
	if err != nil {
		slog.Warn("permission lookup failed, attempting send anyway", slog.String("channel", channelID), slog.Any("err", err))
		perms = discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks
	}
	if perms&discordgo.PermissionSendMessages == 0 {
		slog.Warn("missing send permission, skipping notification", slog.String("channel", channelID))
		if telemetry.DispatchesFailed != nil {
			telemetry.DispatchesFailed.WithLabelValues(ev.Platform).Inc()
		}
		return false
	}

	msg := &discordgo.MessageSend{Content: content}
	if perms&discordgo.PermissionEmbedLinks == 0 {
		body := ev.Text
		if content != "" {
			body = content + " " + body
		}
		msg = &discordgo.MessageSend{Content: body}
	} else {
		msg.Embeds = []*discordgo.MessageEmbed{ev.Embed}
	}

	if _, err := d.Session.ChannelMessageSendComplex(channelID, msg); err != nil {
		slog.Warn("notification send failed", slog.String("channel", channelID), slog.Any("err", err))
		if telemetry.DispatchesFailed != nil {
			telemetry.DispatchesFailed.WithLabelValues(ev.Platform).Inc()
		}
		return false
	}
	if telemetry.DispatchesSent != nil {
		telemetry.DispatchesSent.WithLabelValues(ev.Platform).Inc()
	}
	return true
}

// LiveEvent formats a Twitch live stream.
func LiveEvent(st *twitchapi.Stream) *Event {
	url := "https://www.twitch.tv/" + st.Login
	name := st.UserName
	if name == "" {
		name = st.Login
	}
	embed := &discordgo.MessageEmbed{
		Title: st.Title,
		URL:   url,
		Author: &discordgo.MessageEmbedAuthor{
			Name: fmt.Sprintf("%s is live on Twitch!", name),
		},
		Color: colorTwitch,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Game", Value: orDash(st.Game), Inline: true},
			{Name: "Viewers", Value: fmt.Sprintf("%d", st.ViewerCount), Inline: true},
		},
		Timestamp: st.StartedAt.Format(time.RFC3339),
	}
	if st.ThumbnailURL != "" {
		thumb := strings.NewReplacer("{width}", "1280", "{height}", "720").Replace(st.ThumbnailURL)
		embed.Image = &discordgo.MessageEmbedImage{URL: thumb}
	}
	return &Event{
		Platform: "twitch",
		URL:      url,
		Text:     fmt.Sprintf("%s is live on Twitch: %s %s", name, st.Title, url),
		Embed:    embed,
	}
}

// VideoEvent formats a YouTube upload.
func VideoEvent(v *youtubeapi.Video) *Event {
	url := v.URL()
	embed := &discordgo.MessageEmbed{
		Title: v.Title,
		URL:   url,
		Author: &discordgo.MessageEmbedAuthor{
			Name: fmt.Sprintf("%s uploaded a new video!", v.ChannelTitle),
		},
		Color:       colorYouTube,
		Description: truncate(v.Description, 200),
		Timestamp:   v.PublishedAt,
	}
	if v.Thumbnail != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: v.Thumbnail}
	}
	return &Event{
		Platform: "youtube",
		URL:      url,
		Text:     fmt.Sprintf("%s uploaded a new video: %s %s", v.ChannelTitle, v.Title, url),
		Embed:    embed,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
