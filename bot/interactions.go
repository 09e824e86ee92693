package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/tickets"
)

// Modal custom-ID prefixes. Like the buttons, the suffix carries the family
// or ticket id so no in-memory binding is needed across restarts.
const (
	modalIntakePrefix = "ticket:intake:"
	modalNotePrefix   = "ticket:note:"
)

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(s, i)
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	if u := interactionUser(i); u != nil {
		return u.Username
	}
	return "unknown"
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	switch {
	case strings.HasPrefix(customID, tickets.CustomIDCreatePrefix):
		b.handleCreateButton(s, i, strings.TrimPrefix(customID, tickets.CustomIDCreatePrefix))
	case strings.HasPrefix(customID, tickets.CustomIDResolvePrefix):
		b.handleResolveButton(s, i, strings.TrimPrefix(customID, tickets.CustomIDResolvePrefix))
	case strings.HasPrefix(customID, tickets.CustomIDConfirmPrefix):
		b.handleConfirmButton(s, i, strings.TrimPrefix(customID, tickets.CustomIDConfirmPrefix))
	case strings.HasPrefix(customID, tickets.CustomIDClosePrefix):
		b.handleCloseButton(s, i, strings.TrimPrefix(customID, tickets.CustomIDClosePrefix))
	}
}

var intakeFields = map[string][]discordgo.TextInput{
	"support": {
		{CustomID: "subject", Label: "What do you need help with?", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
	},
	"bug": {
		{CustomID: "description", Label: "Describe the bug", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
		{CustomID: "steps", Label: "Steps to reproduce", Style: discordgo.TextInputParagraph, Required: false, MaxLength: 1000},
	},
	"player": {
		{CustomID: "player", Label: "Who are you reporting?", Style: discordgo.TextInputShort, Required: true, MaxLength: 100},
		{CustomID: "reason", Label: "What happened?", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
	},
	"feedback": {
		{CustomID: "feedback", Label: "Your feedback", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
	},
	"valorant": {
		{CustomID: "riot_id", Label: "Riot ID", Style: discordgo.TextInputShort, Required: true, MaxLength: 100},
		{CustomID: "issue", Label: "What is this about?", Style: discordgo.TextInputParagraph, Required: true, MaxLength: 1000},
	},
}

func (b *Bot) handleCreateButton(s *discordgo.Session, i *discordgo.InteractionCreate, family string) {
	// Applications collect their answer as a follow-up message instead of a
	// modal, so the channel opens immediately.
	if family == "applications" {
		b.createApplicationTicket(s, i)
		return
	}
	fields, ok := intakeFields[family]
	if !ok {
		ephemeral(s, i, "Unknown ticket type.")
		return
	}
	var rows []discordgo.MessageComponent
	for _, f := range fields {
		field := f
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{field}})
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modalIntakePrefix + family,
			Title:      panelLabel(family),
			Components: rows,
		},
	})
	if err != nil {
		slog.Warn("intake modal failed", slog.String("family", family), slog.Any("err", err))
	}
}

func (b *Bot) createApplicationTicket(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	t, err := b.Tickets.Create(i.GuildID, store.ParseID(user.ID), displayName(i), "applications", nil)
	if err != nil {
		ephemeral(s, i, createErrorMessage(err))
		return
	}
	channelID := store.FormatID(t.Channel)
	ephemeral(s, i, fmt.Sprintf("Your application channel is ready: <#%s>", channelID))

	prompt := fmt.Sprintf("<@%s> Tell us about yourself in one message. You have %s; you can keep writing here afterwards either way.",
		user.ID, DefaultAwaitTimeout)
	if _, err := s.ChannelMessageSend(channelID, prompt); err != nil {
		slog.Warn("application prompt failed", slog.Any("err", err))
	}
	guildID, ticketID := i.GuildID, t.ID
	b.pending.Expect(channelID, user.ID, DefaultAwaitTimeout,
		func(content string) {
			if err := b.Tickets.Tickets.SetAnswer(guildID, ticketID, "application", content); err != nil {
				slog.Warn("application answer save failed", slog.String("ticket", ticketID), slog.Any("err", err))
				return
			}
			_, _ = s.ChannelMessageSend(channelID, "Thanks, your application has been recorded.")
		},
		func() {
			_, _ = s.ChannelMessageSend(channelID, "No application received yet. Staff will review whatever you write here.")
		})
}

func createErrorMessage(err error) string {
	switch {
	case errors.Is(err, tickets.ErrDuplicate):
		return titleCaseSentence(err.Error())
	case errors.Is(err, tickets.ErrNoCategory):
		return "Tickets are not set up on this server yet."
	default:
		return "Could not open a ticket: " + err.Error()
	}
}

func titleCaseSentence(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func (b *Bot) handleResolveButton(s *discordgo.Session, i *discordgo.InteractionCreate, ticketID string) {
	if !b.Tickets.CanResolve(i.GuildID, i.Member) {
		ephemeral(s, i, "Only support staff can resolve tickets.")
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: modalNotePrefix + ticketID,
			Title:    "Resolve ticket",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "note",
						Label:     "Resolution note",
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MaxLength: 1000,
					},
				}},
			},
		},
	})
	if err != nil {
		slog.Warn("resolve modal failed", slog.String("ticket", ticketID), slog.Any("err", err))
	}
}

func (b *Bot) handleConfirmButton(s *discordgo.Session, i *discordgo.InteractionCreate, ticketID string) {
	user := interactionUser(i)
	err := b.Tickets.Confirm(i.GuildID, ticketID, store.ParseID(user.ID))
	switch {
	case errors.Is(err, tickets.ErrNotAllowed):
		ephemeral(s, i, "Only the ticket owner can confirm.")
	case errors.Is(err, store.ErrNotFound):
		ephemeral(s, i, "This ticket no longer exists.")
	case err != nil:
		ephemeral(s, i, "Could not close the ticket: "+err.Error())
	default:
		// Channel is gone; the interaction still wants an ack.
		ephemeral(s, i, "Ticket closed. Thanks!")
	}
}

func (b *Bot) handleCloseButton(s *discordgo.Session, i *discordgo.InteractionCreate, ticketID string) {
	user := interactionUser(i)
	err := b.Tickets.Close(i.GuildID, ticketID, store.ParseID(user.ID), i.Member)
	switch {
	case errors.Is(err, tickets.ErrNotAllowed):
		ephemeral(s, i, "Only the ticket owner or staff can close this.")
	case errors.Is(err, store.ErrNotFound):
		ephemeral(s, i, "This ticket no longer exists.")
	case err != nil:
		ephemeral(s, i, "Could not close the ticket: "+err.Error())
	default:
		ephemeral(s, i, "Ticket closed.")
	}
}

func (b *Bot) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	switch {
	case strings.HasPrefix(data.CustomID, modalIntakePrefix):
		family := strings.TrimPrefix(data.CustomID, modalIntakePrefix)
		user := interactionUser(i)
		t, err := b.Tickets.Create(i.GuildID, store.ParseID(user.ID), displayName(i), family, modalValues(data))
		if err != nil {
			ephemeral(s, i, createErrorMessage(err))
			return
		}
		ephemeral(s, i, fmt.Sprintf("Your ticket is ready: <#%s>", store.FormatID(t.Channel)))
	case strings.HasPrefix(data.CustomID, modalNotePrefix):
		ticketID := strings.TrimPrefix(data.CustomID, modalNotePrefix)
		if !b.Tickets.CanResolve(i.GuildID, i.Member) {
			ephemeral(s, i, "Only support staff can resolve tickets.")
			return
		}
		user := interactionUser(i)
		note := modalValues(data)["note"]
		if err := b.Tickets.Resolve(i.GuildID, ticketID, store.ParseID(user.ID), displayName(i), note); err != nil {
			ephemeral(s, i, "Could not resolve: "+err.Error())
			return
		}
		ephemeral(s, i, "Ticket resolved.")
	}
}

// modalValues flattens submitted text inputs by their custom id.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := map[string]string{}
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok {
				out[in.CustomID] = in.Value
			}
		}
	}
	return out
}
