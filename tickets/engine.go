// Package tickets implements the ticket lifecycle: panel-driven creation of
// per-user private channels, staff resolution with a note, owner confirmation,
// transcript archival, and expiry of tickets stuck in resolved. Every
// transition is persisted before its side effects are considered done, and
// component custom IDs embed the ticket id so the bindings survive restarts.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/telemetry"
)

const (
	colorOpen     = 0x3498DB
	colorResolved = 0x2ECC71

	channelNameLimit = 90

	// ResolvedTTL is how long a resolved ticket waits for owner confirmation
	// before the sweep deletes it anyway.
	ResolvedTTL = 30 * 24 * time.Hour
)

// Component custom-ID prefixes. The ticket id rides in the suffix, so a
// restarted process can route a click with nothing but the store record.
const (
	CustomIDCreatePrefix  = "ticket:create:"
	CustomIDResolvePrefix = "ticket:resolve:"
	CustomIDConfirmPrefix = "ticket:confirm:"
	CustomIDClosePrefix   = "ticket:close:"
)

var (
	// ErrDuplicate is returned when the owner already has an open ticket of
	// this family. Channel carries the existing ticket channel for the user
	// message.
	ErrDuplicate = errors.New("you already have an open ticket")
	// ErrNoCategory is returned when no ticket category can be resolved.
	ErrNoCategory = errors.New("no ticket category configured")
	// ErrNotAllowed is returned for unauthorized resolve/confirm attempts.
	ErrNotAllowed = errors.New("not allowed")
)

// Session is the slice of discordgo the engine needs; *discordgo.Session
// satisfies it.
type Session interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Engine drives ticket state transitions.
type Engine struct {
	Session   Session
	Config    *store.ConfigStore
	Tickets   *store.TicketStore
	BotUserID string
}

var nameSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

// channelName builds "<family>-<owner>" lowercased, hyphenated and capped at
// the Discord channel-name limit.
func channelName(family, ownerName string) string {
	name := strings.ToLower(family + "-" + ownerName)
	name = nameSanitizer.ReplaceAllString(strings.ReplaceAll(name, " ", "-"), "-")
	name = strings.Trim(name, "-")
	if r := []rune(name); len(r) > channelNameLimit {
		name = string(r[:channelNameLimit])
	}
	return name
}

// titleCase capitalizes the first letter for embed titles.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Create opens a new ticket for the owner: uniqueness check, category
// resolution, channel provisioning with permission overwrites, record
// persistence, and the initial embed. On a lost creation race the channel is
// rolled back and ErrDuplicate returned, keeping the first-persisted ticket.
func (e *Engine) Create(guildID string, ownerID uint64, ownerName, family string, answers map[string]string) (*store.Ticket, error) {
	if existing := e.Tickets.FindOpen(guildID, ownerID, family); existing != nil {
		return existing, fmt.Errorf("%w: <#%s>", ErrDuplicate, store.FormatID(existing.Channel))
	}

	gc := e.Config.Guild(guildID)
	if gc == nil {
		gc = &store.GuildConfig{}
	}
	category, err := e.resolveCategory(gc)
	if err != nil {
		return nil, err
	}

	ch, err := e.Session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 channelName(family, ownerName),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             category,
		PermissionOverwrites: e.overwrites(guildID, ownerID, gc),
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	t := &store.Ticket{
		ID:        uuid.NewString(),
		Owner:     ownerID,
		Channel:   store.ParseID(ch.ID),
		Type:      family,
		Status:    store.TicketOpen,
		CreatedAt: time.Now().UTC(),
		Answers:   answers,
	}
	if err := e.Tickets.Create(guildID, t); err != nil {
		// Lost the race: keep the first-persisted ticket, drop our channel.
		if _, derr := e.Session.ChannelDelete(ch.ID); derr != nil {
			slog.Warn("rollback of duplicate ticket channel failed", slog.String("channel", ch.ID), slog.Any("err", derr))
		}
		if errors.Is(err, store.ErrTicketExists) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	if _, err := e.Session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content:    fmt.Sprintf("<@%s>", store.FormatID(ownerID)),
		Embeds:     []*discordgo.MessageEmbed{e.openEmbed(t, ownerName)},
		Components: []discordgo.MessageComponent{actionRow(openButton(t))},
	}); err != nil {
		slog.Warn("initial ticket message failed", slog.String("channel", ch.ID), slog.Any("err", err))
	}

	if telemetry.TicketsCreated != nil {
		telemetry.TicketsCreated.Inc()
	}
	telemetry.SetOpenTickets(e.Tickets.CountOpen())
	slog.Info("ticket created",
		slog.String("guild", guildID), slog.String("ticket", t.ID),
		slog.String("family", family), slog.Uint64("owner", ownerID))
	return t, nil
}

func (e *Engine) resolveCategory(gc *store.GuildConfig) (string, error) {
	if gc.TicketCategory != 0 {
		return store.FormatID(gc.TicketCategory), nil
	}
	if gc.TicketPanelChannel != 0 {
		panel, err := e.Session.Channel(store.FormatID(gc.TicketPanelChannel))
		if err == nil && panel.ParentID != "" {
			return panel.ParentID, nil
		}
	}
	return "", ErrNoCategory
}

func (e *Engine) overwrites(guildID string, ownerID uint64, gc *store.GuildConfig) []*discordgo.PermissionOverwrite {
	ows := []*discordgo.PermissionOverwrite{
		{
			// Guild id doubles as the @everyone role id.
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    store.FormatID(ownerID),
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles,
		},
		{
			ID:    e.BotUserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageChannels,
		},
	}
	for _, role := range gc.TicketRoles {
		ows = append(ows, &discordgo.PermissionOverwrite{
			ID:    store.FormatID(role),
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		})
	}
	return ows
}

func (e *Engine) openEmbed(t *store.Ticket, ownerName string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s ticket", titleCase(t.Type)),
		Description: fmt.Sprintf("Opened by **%s**. Staff will be with you shortly.", ownerName),
		Color:       colorOpen,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ticket " + t.ID},
		Timestamp:   t.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range t.Answers {
		if v == "" {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: k, Value: v})
	}
	return embed
}

func openButton(t *store.Ticket) discordgo.Button {
	if t.Type == "valorant" {
		return discordgo.Button{
			Label:    "Resolve",
			Style:    discordgo.PrimaryButton,
			CustomID: CustomIDResolvePrefix + t.ID,
		}
	}
	return discordgo.Button{
		Label:    "Close",
		Style:    discordgo.DangerButton,
		CustomID: CustomIDClosePrefix + t.ID,
	}
}

func actionRow(buttons ...discordgo.Button) discordgo.MessageComponent {
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		btn := b
		row.Components = append(row.Components, btn)
	}
	return row
}

// CanResolve reports whether the member may resolve tickets: administrator,
// or holder of a configured support/staff role.
func (e *Engine) CanResolve(guildID string, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	gc := e.Config.Guild(guildID)
	if gc == nil {
		return false
	}
	allowed := map[uint64]bool{}
	for _, r := range gc.TicketSupportRoles {
		allowed[r] = true
	}
	for _, r := range gc.TicketRoles {
		allowed[r] = true
	}
	for _, r := range member.Roles {
		if allowed[store.ParseID(r)] {
			return true
		}
	}
	return false
}

// Resolve transitions the ticket to resolved: record update, green re-render
// with the owner-gated confirm button, best-effort owner DM, archive record.
func (e *Engine) Resolve(guildID, ticketID string, resolverID uint64, resolverName, note string) error {
	now := time.Now().UTC()
	if err := e.Tickets.Resolve(guildID, ticketID, resolverID, note, now); err != nil {
		return err
	}
	t := e.Tickets.Get(guildID, ticketID)
	if t == nil {
		return store.ErrNotFound
	}
	channelID := store.FormatID(t.Channel)

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s ticket resolved", titleCase(t.Type)),
		Description: fmt.Sprintf("Resolved by **%s**. Press **Confirm & Close** to close this ticket.", resolverName),
		Color:       colorResolved,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ticket " + t.ID},
		Timestamp:   now.Format(time.RFC3339),
	}
	if note != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Resolution", Value: note})
	}
	if _, err := e.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s>", store.FormatID(t.Owner)),
		Embeds:  []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{actionRow(discordgo.Button{
			Label:    "Confirm & Close",
			Style:    discordgo.SuccessButton,
			CustomID: CustomIDConfirmPrefix + t.ID,
		})},
	}); err != nil {
		slog.Warn("resolved message failed", slog.String("channel", channelID), slog.Any("err", err))
	}

	e.dmOwner(t, note)
	e.archiveRecord(guildID, t, resolverName)

	if telemetry.TicketsResolved != nil {
		telemetry.TicketsResolved.Inc()
	}
	telemetry.SetOpenTickets(e.Tickets.CountOpen())
	slog.Info("ticket resolved", slog.String("guild", guildID), slog.String("ticket", ticketID), slog.Uint64("resolver", resolverID))
	return nil
}

func (e *Engine) dmOwner(t *store.Ticket, note string) {
	dm, err := e.Session.UserChannelCreate(store.FormatID(t.Owner))
	if err != nil {
		slog.Debug("owner DM channel failed", slog.String("ticket", t.ID), slog.Any("err", err))
		return
	}
	body := fmt.Sprintf("Your %s ticket has been resolved.", t.Type)
	if note != "" {
		body += " Resolution: " + note
	}
	if _, err := e.Session.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{Content: body}); err != nil {
		slog.Debug("owner DM failed", slog.String("ticket", t.ID), slog.Any("err", err))
	}
}

func (e *Engine) archiveRecord(guildID string, t *store.Ticket, resolverName string) {
	gc := e.Config.Guild(guildID)
	if gc == nil || gc.TicketArchiveChannel == 0 {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Ticket resolved",
		Color: colorResolved,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Ticket", Value: t.ID, Inline: true},
			{Name: "Family", Value: t.Type, Inline: true},
			{Name: "Owner", Value: fmt.Sprintf("<@%s>", store.FormatID(t.Owner)), Inline: true},
			{Name: "Resolver", Value: resolverName, Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if t.ResolutionNote != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Resolution", Value: t.ResolutionNote})
	}
	if _, err := e.Session.ChannelMessageSendComplex(store.FormatID(gc.TicketArchiveChannel), &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		slog.Warn("archive record failed", slog.String("ticket", t.ID), slog.Any("err", err))
	}
}

// Confirm is the owner's final step on a resolved ticket: transcript, channel
// deletion, record removal.
func (e *Engine) Confirm(guildID, ticketID string, userID uint64) error {
	t := e.Tickets.Get(guildID, ticketID)
	if t == nil {
		return store.ErrNotFound
	}
	if t.Owner != userID {
		return ErrNotAllowed
	}
	if t.Status != store.TicketResolved {
		return fmt.Errorf("ticket is not resolved")
	}
	return e.closeOut(guildID, t)
}

// Close is the direct owner/admin close used by the non-valorant families.
func (e *Engine) Close(guildID, ticketID string, userID uint64, member *discordgo.Member) error {
	t := e.Tickets.Get(guildID, ticketID)
	if t == nil {
		return store.ErrNotFound
	}
	if t.Owner != userID && !e.CanResolve(guildID, member) {
		return ErrNotAllowed
	}
	return e.closeOut(guildID, t)
}

func (e *Engine) closeOut(guildID string, t *store.Ticket) error {
	e.archiveTranscript(guildID, t)

	channelID := store.FormatID(t.Channel)
	if _, err := e.Session.ChannelDelete(channelID); err != nil {
		slog.Warn("ticket channel delete failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	if err := e.Tickets.Delete(guildID, t.ID); err != nil {
		return err
	}
	if telemetry.TicketsClosed != nil {
		telemetry.TicketsClosed.Inc()
	}
	telemetry.SetOpenTickets(e.Tickets.CountOpen())
	slog.Info("ticket closed", slog.String("guild", guildID), slog.String("ticket", t.ID))
	return nil
}

// RunCleanup periodically deletes tickets stuck in resolved for more than
// ResolvedTTL. Expiry is silent: no transcript, no DM.
func (e *Engine) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	cutoff := time.Now().UTC().Add(-ResolvedTTL)
	for guildID, tickets := range e.Tickets.ExpiredResolved(cutoff) {
		for _, t := range tickets {
			if _, err := e.Session.ChannelDelete(store.FormatID(t.Channel)); err != nil {
				slog.Debug("expired ticket channel delete failed", slog.String("ticket", t.ID), slog.Any("err", err))
			}
			if err := e.Tickets.Delete(guildID, t.ID); err != nil {
				slog.Warn("expired ticket record delete failed", slog.String("ticket", t.ID), slog.Any("err", err))
				continue
			}
			slog.Info("expired resolved ticket removed", slog.String("guild", guildID), slog.String("ticket", t.ID))
		}
	}
}

// ReconcileStartup drops records whose channel no longer exists (deleted by
// hand while the bot was down). Component bindings need no re-registration:
// custom IDs carry the ticket id.
func (e *Engine) ReconcileStartup() {
	for guildID, tickets := range e.Tickets.All() {
		for _, t := range tickets {
			if _, err := e.Session.Channel(store.FormatID(t.Channel)); err != nil {
				slog.Info("dropping ticket with missing channel", slog.String("guild", guildID), slog.String("ticket", t.ID))
				_ = e.Tickets.Delete(guildID, t.ID)
			}
		}
	}
	telemetry.SetOpenTickets(e.Tickets.CountOpen())
}
