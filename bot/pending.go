package bot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DefaultAwaitTimeout bounds how long a follow-up prompt waits for the user's
// next message in the channel.
const DefaultAwaitTimeout = 30 * time.Second

type pendingKey struct {
	channelID string
	userID    string
}

type expectation struct {
	deadline time.Time
	onText   func(content string)
	onExpire func()
}

// Pending tracks prompts awaiting a user's next message, keyed by
// (channel, user). Handlers never block inside gateway callbacks: the message
// handler consumes a matching entry, and a background sweep fires expiry
// callbacks for entries whose deadline passed.
type Pending struct {
	mu      sync.Mutex
	entries map[pendingKey]*expectation
}

func NewPending() *Pending {
	return &Pending{entries: map[pendingKey]*expectation{}}
}

// Expect registers a one-shot expectation. A newer expectation for the same
// (channel, user) replaces an older one without firing its expiry.
func (p *Pending) Expect(channelID, userID string, timeout time.Duration, onText func(content string), onExpire func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[pendingKey{channelID, userID}] = &expectation{
		deadline: time.Now().Add(timeout),
		onText:   onText,
		onExpire: onExpire,
	}
}

// Consume hands the message to a matching live expectation, removing it.
// Reports whether the message was claimed.
func (p *Pending) Consume(channelID, userID, content string) bool {
	key := pendingKey{channelID, userID}
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	if time.Now().After(e.deadline) {
		if e.onExpire != nil {
			e.onExpire()
		}
		return false
	}
	if e.onText != nil {
		e.onText(content)
	}
	return true
}

// RunExpiry fires expiry callbacks for overdue expectations once a second.
func (p *Pending) RunExpiry(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.expire(time.Now())
		}
	}
}

func (p *Pending) expire(now time.Time) {
	var overdue []*expectation
	p.mu.Lock()
	for key, e := range p.entries {
		if now.After(e.deadline) {
			overdue = append(overdue, e)
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()
	for _, e := range overdue {
		if e.onExpire != nil {
			e.onExpire()
		}
	}
}

// onMessage routes guild messages into pending expectations.
func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	b.pending.Consume(m.ChannelID, m.Author.ID, m.Content)
}
