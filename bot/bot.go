// Package bot owns the Discord gateway session: slash-command registration
// and handling, the interaction router for ticket panel components, and the
// readiness gate the pollers wait on before their first tick.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/tickets"
	"github.com/tetherbyte/guildwatch/youtubeapi"
)

// Bot wires the gateway session to the stores and the ticket engine.
type Bot struct {
	Session *discordgo.Session
	Config  *store.ConfigStore
	State   *store.StateStore
	Tickets *tickets.Engine
	YouTube *youtubeapi.Client

	ready     chan struct{}
	readyOnce sync.Once
	pending   *Pending
}

// New builds the session but does not connect; call Start.
func New(token string, cfg *store.ConfigStore, state *store.StateStore, yt *youtubeapi.Client) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	// Cached messages give the moderation log before/after content on edits
	// and deletions.
	s.State.MaxMessageCount = 1000

	b := &Bot{
		Session: s,
		Config:  cfg,
		State:   state,
		YouTube: yt,
		ready:   make(chan struct{}),
		pending: NewPending(),
	}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)
	s.AddHandler(b.onMessage)
	return b, nil
}

// Ready is closed once the gateway session has received its Ready event. The
// pollers block on it before their first tick so dispatch never races the
// session coming up.
func (b *Bot) Ready() <-chan struct{} {
	return b.ready
}

// Start opens the gateway connection, registers commands, and re-checks
// persisted tickets against live channels.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if _, err := b.registerCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	if b.Tickets != nil {
		b.Tickets.BotUserID = b.Session.State.User.ID
		b.Tickets.ReconcileStartup()
	}
	go b.pending.RunExpiry(ctx)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.Session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord session ready",
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)))
	b.readyOnce.Do(func() { close(b.ready) })
}

// HasGuild reports whether the session currently resolves the guild. The
// pollers skip guilds this returns false for, leaving their state untouched.
func (b *Bot) HasGuild(guildID string) bool {
	g, err := b.Session.State.Guild(guildID)
	return err == nil && g != nil
}

// BotUserID returns the connected user's id, empty before Ready.
func (b *Bot) BotUserID() string {
	if b.Session.State.User == nil {
		return ""
	}
	return b.Session.State.User.ID
}
