package store

import (
	"sync"
)

// StreamState tracks the currently-notified live session for one streamer.
// Notified is empty while the streamer is offline; it holds the live session
// id once a notification for that session went out, so the session fires at
// most once.
type StreamState struct {
	Notified string `json:"notified,omitempty"`
}

// ChannelState tracks the most recently notified upload for one YouTube
// channel. LatestVideoData keeps the last dispatched summary for the status
// surface.
type ChannelState struct {
	LastVideo       string            `json:"last_video,omitempty"`
	LatestVideoData map[string]string `json:"latest_video_data,omitempty"`
}

// GuildState is one guild's notification state, keyed the same way as the
// guild's config (Twitch by login, YouTube by raw input).
type GuildState struct {
	Twitch  map[string]*StreamState  `json:"twitch,omitempty"`
	YouTube map[string]*ChannelState `json:"youtube,omitempty"`
}

// StateDoc is the full notification-state document.
type StateDoc map[string]*GuildState

// Stream returns the stream state for (guild, login), never nil.
func (d StateDoc) Stream(guildID, login string) *StreamState {
	gs := d[guildID]
	if gs == nil {
		gs = &GuildState{}
		d[guildID] = gs
	}
	if gs.Twitch == nil {
		gs.Twitch = map[string]*StreamState{}
	}
	st, ok := gs.Twitch[login]
	if !ok {
		st = &StreamState{}
		gs.Twitch[login] = st
	}
	return st
}

// Channel returns the channel state for (guild, raw input), never nil.
func (d StateDoc) Channel(guildID, raw string) *ChannelState {
	gs := d[guildID]
	if gs == nil {
		gs = &GuildState{}
		d[guildID] = gs
	}
	if gs.YouTube == nil {
		gs.YouTube = map[string]*ChannelState{}
	}
	st, ok := gs.YouTube[raw]
	if !ok {
		st = &ChannelState{}
		gs.YouTube[raw] = st
	}
	return st
}

// StateStore owns the notification-state document. It is kept separate from
// the config document so high-churn poller writes never contend with admin
// mutations of the config.
type StateStore struct {
	mu   sync.Mutex
	path string
	doc  StateDoc
}

// OpenState loads the state document at path, starting empty when the file is
// missing or corrupt.
func OpenState(path string) (*StateStore, error) {
	s := &StateStore{path: path, doc: StateDoc{}}
	if err := loadJSON(path, &s.doc); err != nil {
		return nil, err
	}
	if s.doc == nil {
		s.doc = StateDoc{}
	}
	return s, nil
}

// Snapshot returns a deep copy of the whole document.
func (s *StateStore) Snapshot() StateDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StateDoc{}
	clone(s.doc, &out)
	return out
}

// Update runs fn against the document under the mutex and flushes once.
// Pollers call this at most once per tick with all of the tick's changes.
func (s *StateStore) Update(fn func(StateDoc)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
	return saveJSON(s.path, s.doc)
}

// RemoveStream drops the state entry for a streamer that is no longer
// tracked.
func (s *StateStore) RemoveStream(guildID, login string) error {
	return s.Update(func(d StateDoc) {
		if gs := d[guildID]; gs != nil && gs.Twitch != nil {
			delete(gs.Twitch, login)
		}
	})
}

// RemoveChannel drops the state entry for a YouTube channel that is no longer
// tracked.
func (s *StateStore) RemoveChannel(guildID, raw string) error {
	return s.Update(func(d StateDoc) {
		if gs := d[guildID]; gs != nil && gs.YouTube != nil {
			delete(gs.YouTube, raw)
		}
	})
}
