package store

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrExists is returned when adding an entity that is already tracked.
	ErrExists = errors.New("already tracked")
	// ErrNotFound is returned when removing an entity that is not tracked.
	ErrNotFound = errors.New("not tracked")
)

// TwitchConfig holds per-guild Twitch notification settings.
type TwitchConfig struct {
	Streamers    []string `json:"streamers,omitempty"`
	NotifChannel uint64   `json:"notif_channel,omitempty"`
	NotifRole    uint64   `json:"notif_role,omitempty"`
}

// YouTubeChannel is the resolved form of a user-entered channel reference.
// It is persisted so the uploads playlist never has to be re-resolved.
type YouTubeChannel struct {
	ChannelID        string `json:"channel_id"`
	ChannelName      string `json:"channel_name"`
	UploadsPlaylistID string `json:"uploads_playlist_id"`
}

// YouTubeConfig holds per-guild YouTube notification settings. Channels are
// keyed by the raw user input that added them.
type YouTubeConfig struct {
	Channels     map[string]YouTubeChannel `json:"channels,omitempty"`
	NotifChannel uint64                    `json:"notif_channel,omitempty"`
	NotifRole    uint64                    `json:"notif_role,omitempty"`
}

// GuildConfig is one guild's settings. Any field may be absent; a missing
// field disables the corresponding feature for that guild only.
type GuildConfig struct {
	Twitch  *TwitchConfig  `json:"twitch,omitempty"`
	YouTube *YouTubeConfig `json:"youtube,omitempty"`

	TicketCategory     uint64   `json:"ticket_category,omitempty"`
	TicketRoles        []uint64 `json:"ticket_roles,omitempty"`
	TicketPanelChannel uint64   `json:"ticket_panel_channel,omitempty"`

	TicketArchiveChannel uint64   `json:"ticket_archive_channel,omitempty"`
	TicketSupportRoles   []uint64 `json:"ticket_support_roles,omitempty"`

	ModlogChannel uint64 `json:"modlog_channel,omitempty"`
	VoiceLobby    uint64 `json:"voice_lobby,omitempty"`
}

// ConfigStore owns the per-guild configuration document.
type ConfigStore struct {
	mu   sync.Mutex
	path string
	doc  map[string]*GuildConfig
}

// OpenConfig loads the config document at path, starting empty when the file
// is missing or corrupt.
func OpenConfig(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path, doc: map[string]*GuildConfig{}}
	if err := loadJSON(path, &s.doc); err != nil {
		return nil, err
	}
	if s.doc == nil {
		s.doc = map[string]*GuildConfig{}
	}
	return s, nil
}

// Snapshot returns a deep copy of the whole document. Pollers take one
// snapshot per tick so a concurrent admin mutation never shows through
// mid-iteration.
func (s *ConfigStore) Snapshot() map[string]*GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*GuildConfig{}
	clone(s.doc, &out)
	return out
}

// Guild returns a deep copy of one guild's config, or nil if absent.
func (s *ConfigStore) Guild(guildID string) *GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc, ok := s.doc[guildID]
	if !ok {
		return nil
	}
	out := &GuildConfig{}
	clone(gc, out)
	return out
}

// update runs fn against the guild's config (created on demand) under the
// document mutex and flushes the full document.
func (s *ConfigStore) update(guildID string, fn func(*GuildConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gc, ok := s.doc[guildID]
	if !ok {
		gc = &GuildConfig{}
		s.doc[guildID] = gc
	}
	if err := fn(gc); err != nil {
		return err
	}
	return saveJSON(s.path, s.doc)
}

// AddStreamer tracks a Twitch login for the guild. Logins are case-folded and
// kept unique in insertion order.
func (s *ConfigStore) AddStreamer(guildID, login string) error {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return ErrNotFound
	}
	return s.update(guildID, func(gc *GuildConfig) error {
		if gc.Twitch == nil {
			gc.Twitch = &TwitchConfig{}
		}
		for _, l := range gc.Twitch.Streamers {
			if l == login {
				return ErrExists
			}
		}
		gc.Twitch.Streamers = append(gc.Twitch.Streamers, login)
		return nil
	})
}

// RemoveStreamer stops tracking a Twitch login.
func (s *ConfigStore) RemoveStreamer(guildID, login string) error {
	login = strings.ToLower(strings.TrimSpace(login))
	return s.update(guildID, func(gc *GuildConfig) error {
		if gc.Twitch == nil {
			return ErrNotFound
		}
		for i, l := range gc.Twitch.Streamers {
			if l == login {
				gc.Twitch.Streamers = append(gc.Twitch.Streamers[:i], gc.Twitch.Streamers[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

// SetTwitchNotif sets the Twitch notification channel and ping role.
func (s *ConfigStore) SetTwitchNotif(guildID string, channel, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		if gc.Twitch == nil {
			gc.Twitch = &TwitchConfig{}
		}
		if channel != 0 {
			gc.Twitch.NotifChannel = channel
		}
		if role != 0 {
			gc.Twitch.NotifRole = role
		}
		return nil
	})
}

// AddYouTubeChannel tracks a resolved YouTube channel under the raw input that
// named it.
func (s *ConfigStore) AddYouTubeChannel(guildID, raw string, ch YouTubeChannel) error {
	raw = strings.TrimSpace(raw)
	return s.update(guildID, func(gc *GuildConfig) error {
		if gc.YouTube == nil {
			gc.YouTube = &YouTubeConfig{}
		}
		if gc.YouTube.Channels == nil {
			gc.YouTube.Channels = map[string]YouTubeChannel{}
		}
		if _, ok := gc.YouTube.Channels[raw]; ok {
			return ErrExists
		}
		for _, existing := range gc.YouTube.Channels {
			if existing.ChannelID == ch.ChannelID {
				return ErrExists
			}
		}
		gc.YouTube.Channels[raw] = ch
		return nil
	})
}

// RemoveYouTubeChannel stops tracking a channel by its raw input key or its
// resolved channel ID.
func (s *ConfigStore) RemoveYouTubeChannel(guildID, rawOrID string) (string, error) {
	rawOrID = strings.TrimSpace(rawOrID)
	removed := ""
	err := s.update(guildID, func(gc *GuildConfig) error {
		if gc.YouTube == nil || gc.YouTube.Channels == nil {
			return ErrNotFound
		}
		for raw, ch := range gc.YouTube.Channels {
			if raw == rawOrID || ch.ChannelID == rawOrID {
				delete(gc.YouTube.Channels, raw)
				removed = raw
				return nil
			}
		}
		return ErrNotFound
	})
	return removed, err
}

// SetYouTubeNotif sets the YouTube notification channel and ping role.
func (s *ConfigStore) SetYouTubeNotif(guildID string, channel, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		if gc.YouTube == nil {
			gc.YouTube = &YouTubeConfig{}
		}
		if channel != 0 {
			gc.YouTube.NotifChannel = channel
		}
		if role != 0 {
			gc.YouTube.NotifRole = role
		}
		return nil
	})
}

// SetTicketCategory sets the category tickets are created under.
func (s *ConfigStore) SetTicketCategory(guildID string, category uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		gc.TicketCategory = category
		return nil
	})
}

// SetTicketPanelChannel records where the ticket panel was posted.
func (s *ConfigStore) SetTicketPanelChannel(guildID string, channel uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		gc.TicketPanelChannel = channel
		return nil
	})
}

// AddTicketRole grants a staff role access to new ticket channels.
func (s *ConfigStore) AddTicketRole(guildID string, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		for _, r := range gc.TicketRoles {
			if r == role {
				return ErrExists
			}
		}
		gc.TicketRoles = append(gc.TicketRoles, role)
		return nil
	})
}

// RemoveTicketRole revokes a staff role from new ticket channels.
func (s *ConfigStore) RemoveTicketRole(guildID string, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		for i, r := range gc.TicketRoles {
			if r == role {
				gc.TicketRoles = append(gc.TicketRoles[:i], gc.TicketRoles[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

// SetTicketArchiveChannel sets where transcripts and archive records go.
func (s *ConfigStore) SetTicketArchiveChannel(guildID string, channel uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		gc.TicketArchiveChannel = channel
		return nil
	})
}

// AddSupportRole marks a role as allowed to resolve tickets.
func (s *ConfigStore) AddSupportRole(guildID string, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		for _, r := range gc.TicketSupportRoles {
			if r == role {
				return ErrExists
			}
		}
		gc.TicketSupportRoles = append(gc.TicketSupportRoles, role)
		return nil
	})
}

// RemoveSupportRole removes a role from the resolver list.
func (s *ConfigStore) RemoveSupportRole(guildID string, role uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		for i, r := range gc.TicketSupportRoles {
			if r == role {
				gc.TicketSupportRoles = append(gc.TicketSupportRoles[:i], gc.TicketSupportRoles[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

// SetModlogChannel sets the moderation log destination.
func (s *ConfigStore) SetModlogChannel(guildID string, channel uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		gc.ModlogChannel = channel
		return nil
	})
}

// SetVoiceLobby sets the join-to-create lobby channel.
func (s *ConfigStore) SetVoiceLobby(guildID string, channel uint64) error {
	return s.update(guildID, func(gc *GuildConfig) error {
		gc.VoiceLobby = channel
		return nil
	})
}
