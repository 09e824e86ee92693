package tickets

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
)

const transcriptPageSize = 100

// Transcript renders the channel history oldest-first as plain UTF-8 text.
// Bot messages that carry only embeds (notification re-renders, panel posts)
// are skipped; attachments are appended as their URLs.
func (e *Engine) Transcript(channelID string) (string, error) {
	var all []*discordgo.Message
	before := ""
	for {
		page, err := e.Session.ChannelMessages(channelID, transcriptPageSize, before, "", "")
		if err != nil {
			return "", fmt.Errorf("fetch transcript page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		before = page[len(page)-1].ID
		if len(page) < transcriptPageSize {
			break
		}
	}

	var buf bytes.Buffer
	// Pages arrive newest-first; walk backwards for chronological order.
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Author != nil && m.Author.Bot && m.Content == "" && len(m.Embeds) > 0 {
			continue
		}
		ts := m.Timestamp.UTC().Format("2006-01-02 15:04:05")
		author, authorID := "unknown", "?"
		if m.Author != nil {
			author, authorID = m.Author.Username, m.Author.ID
		}
		fmt.Fprintf(&buf, "[%s] %s (%s): %s\n", ts, author, authorID, m.Content)
		for _, a := range m.Attachments {
			fmt.Fprintf(&buf, "    attachment: %s\n", a.URL)
		}
	}
	return buf.String(), nil
}

// archiveTranscript posts the transcript file plus a summary embed to the
// configured archive channel. Missing config or fetch failure never blocks
// the close.
func (e *Engine) archiveTranscript(guildID string, t *store.Ticket) {
	gc := e.Config.Guild(guildID)
	if gc == nil || gc.TicketArchiveChannel == 0 {
		return
	}
	channelID := store.FormatID(t.Channel)
	text, err := e.Transcript(channelID)
	if err != nil {
		slog.Warn("transcript fetch failed", slog.String("ticket", t.ID), slog.Any("err", err))
		return
	}
	if text == "" {
		text = "(no messages)\n"
	}

	created := t.CreatedAt.Format("2006-01-02 15:04")
	embed := &discordgo.MessageEmbed{
		Title: "Ticket transcript",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Ticket", Value: t.ID, Inline: true},
			{Name: "Family", Value: t.Type, Inline: true},
			{Name: "Owner", Value: fmt.Sprintf("<@%s>", store.FormatID(t.Owner)), Inline: true},
			{Name: "Opened", Value: created, Inline: true},
		},
		Color:     colorOpen,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.Session.ChannelMessageSendComplex(store.FormatID(gc.TicketArchiveChannel), &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files: []*discordgo.File{{
			Name:        fmt.Sprintf("ticket-%s.txt", t.ID),
			ContentType: "text/plain; charset=utf-8",
			Reader:      strings.NewReader(text),
		}},
	}); err != nil {
		slog.Warn("transcript upload failed", slog.String("ticket", t.ID), slog.Any("err", err))
	}
}
