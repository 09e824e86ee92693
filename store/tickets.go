package store

import (
	"errors"
	"sync"
	"time"
)

// Ticket statuses.
const (
	TicketOpen     = "open"
	TicketResolved = "resolved"
)

// Ticket families available on the creation panel.
var TicketFamilies = []string{"support", "bug", "player", "feedback", "applications", "valorant"}

// ErrTicketExists is returned when the owner already has an open ticket of
// the same family in the guild.
var ErrTicketExists = errors.New("open ticket already exists")

// Ticket is one persistent support conversation. The record outlives process
// restarts; the channel's interactive components are re-bound from it on
// startup.
type Ticket struct {
	ID             string            `json:"id"`
	Owner          uint64            `json:"owner"`
	Channel        uint64            `json:"channel"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	Resolver       uint64            `json:"resolver,omitempty"`
	ResolutionNote string            `json:"resolution_note,omitempty"`
	Answers        map[string]string `json:"answers,omitempty"`
}

// TicketStore owns the ticket document, keyed by guild then ticket id.
type TicketStore struct {
	mu   sync.Mutex
	path string
	doc  map[string]map[string]*Ticket
}

// OpenTickets loads the ticket document at path, starting empty when the file
// is missing or corrupt.
func OpenTickets(path string) (*TicketStore, error) {
	s := &TicketStore{path: path, doc: map[string]map[string]*Ticket{}}
	if err := loadJSON(path, &s.doc); err != nil {
		return nil, err
	}
	if s.doc == nil {
		s.doc = map[string]map[string]*Ticket{}
	}
	return s, nil
}

func (s *TicketStore) save() error {
	return saveJSON(s.path, s.doc)
}

// Create persists a new ticket, enforcing at most one open ticket per
// (guild, owner, family). The uniqueness check happens under the same lock as
// the insert, so of two racing creates the second observes the first and
// fails with ErrTicketExists.
func (s *TicketStore) Create(guildID string, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.doc[guildID] {
		if existing.Owner == t.Owner && existing.Type == t.Type && existing.Status == TicketOpen {
			return ErrTicketExists
		}
	}
	if s.doc[guildID] == nil {
		s.doc[guildID] = map[string]*Ticket{}
	}
	s.doc[guildID][t.ID] = t
	return s.save()
}

// Get returns a copy of one ticket, or nil.
func (s *TicketStore) Get(guildID, ticketID string) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc[guildID][ticketID]
	if !ok {
		return nil
	}
	out := &Ticket{}
	clone(t, out)
	return out
}

// FindOpen returns the owner's open ticket of the given family, or nil.
func (s *TicketStore) FindOpen(guildID string, owner uint64, family string) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.doc[guildID] {
		if t.Owner == owner && t.Type == family && t.Status == TicketOpen {
			out := &Ticket{}
			clone(t, out)
			return out
		}
	}
	return nil
}

// ByChannel returns the ticket living in the given channel, or nil.
func (s *TicketStore) ByChannel(guildID string, channel uint64) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.doc[guildID] {
		if t.Channel == channel {
			out := &Ticket{}
			clone(t, out)
			return out
		}
	}
	return nil
}

// Resolve transitions an open ticket to resolved. Resolved tickets stay put
// until the owner confirms or the expiry sweep removes them; there is no
// transition back to open.
func (s *TicketStore) Resolve(guildID, ticketID string, resolver uint64, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc[guildID][ticketID]
	if !ok {
		return ErrNotFound
	}
	if t.Status != TicketOpen {
		return errors.New("ticket is not open")
	}
	t.Status = TicketResolved
	t.Resolver = resolver
	t.ResolutionNote = note
	t.ResolvedAt = &at
	return s.save()
}

// SetAnswer records or overwrites one intake answer on an existing ticket.
func (s *TicketStore) SetAnswer(guildID, ticketID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc[guildID][ticketID]
	if !ok {
		return ErrNotFound
	}
	if t.Answers == nil {
		t.Answers = map[string]string{}
	}
	t.Answers[key] = value
	return s.save()
}

// Delete removes a ticket record (close or confirm).
func (s *TicketStore) Delete(guildID, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc[guildID][ticketID]; !ok {
		return ErrNotFound
	}
	delete(s.doc[guildID], ticketID)
	if len(s.doc[guildID]) == 0 {
		delete(s.doc, guildID)
	}
	return s.save()
}

// All returns a deep copy of the whole document (startup re-binding, status).
func (s *TicketStore) All() map[string]map[string]*Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]map[string]*Ticket{}
	clone(s.doc, &out)
	return out
}

// ExpiredResolved returns (guild, ticket) pairs stuck in resolved since
// before cutoff. The sweep deletes these even without owner confirmation.
func (s *TicketStore) ExpiredResolved(cutoff time.Time) map[string][]*Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]*Ticket{}
	for guildID, tickets := range s.doc {
		for _, t := range tickets {
			if t.Status == TicketResolved && t.ResolvedAt != nil && t.ResolvedAt.Before(cutoff) {
				cp := &Ticket{}
				clone(t, cp)
				out[guildID] = append(out[guildID], cp)
			}
		}
	}
	return out
}

// CountOpen returns the number of open tickets across all guilds.
func (s *TicketStore) CountOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tickets := range s.doc {
		for _, t := range tickets {
			if t.Status == TicketOpen {
				n++
			}
		}
	}
	return n
}
