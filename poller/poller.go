// Package poller runs the two periodic notification loops. Each tick reads a
// single snapshot of config and state, queries the platform clients for every
// tracked entity, hands deltas to the dispatcher, and persists state at most
// once per tick. State only advances for entities whose notification actually
// went out, so a failed delivery retries on the next tick.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tetherbyte/guildwatch/notify"
	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/telemetry"
	"github.com/tetherbyte/guildwatch/twitchapi"
	"github.com/tetherbyte/guildwatch/youtubeapi"
)

// TwitchClient is the slice of twitchapi the poller needs.
type TwitchClient interface {
	GetLiveStream(ctx context.Context, login string) (*twitchapi.Stream, error)
}

// YouTubeClient is the slice of youtubeapi the poller needs.
type YouTubeClient interface {
	LatestUpload(ctx context.Context, uploadsPlaylistID string) (*youtubeapi.Video, error)
}

// Dispatcher delivers a formatted event; true means a user-visible message
// went out.
type Dispatcher interface {
	Dispatch(channelID, roleID string, ev *notify.Event) bool
}

// GuildChecker reports whether a guild is currently resolvable on the
// session. Unresolvable guilds (bot kicked, outage) are skipped, not purged.
type GuildChecker interface {
	HasGuild(guildID string) bool
}

// Poller owns both loops.
type Poller struct {
	Config     *store.ConfigStore
	State      *store.StateStore
	Twitch     TwitchClient
	YouTube    YouTubeClient
	Dispatcher Dispatcher
	Guilds     GuildChecker

	TwitchInterval  time.Duration
	YouTubeInterval time.Duration

	// Ready gates the first tick until the session is usable.
	Ready <-chan struct{}

	mu        sync.Mutex
	lastTicks map[string]time.Time
	errCounts map[string]int
}

// LastTick returns when the platform's loop last completed a tick, zero if it
// has not run yet.
func (p *Poller) LastTick(platform string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTicks[platform]
}

// ErrorCount returns how many platform calls have failed since startup.
func (p *Poller) ErrorCount(platform string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errCounts[platform]
}

func (p *Poller) markTick(platform string) {
	p.mu.Lock()
	if p.lastTicks == nil {
		p.lastTicks = map[string]time.Time{}
	}
	p.lastTicks[platform] = time.Now().UTC()
	p.mu.Unlock()
}

func (p *Poller) noteError(platform string) {
	p.mu.Lock()
	if p.errCounts == nil {
		p.errCounts = map[string]int{}
	}
	p.errCounts[platform]++
	p.mu.Unlock()
	if telemetry.PollErrors != nil {
		telemetry.PollErrors.WithLabelValues(platform).Inc()
	}
}

// RunTwitch runs the live-stream loop until ctx is cancelled.
func (p *Poller) RunTwitch(ctx context.Context) {
	if p.Twitch == nil {
		slog.Info("twitch poller disabled: no client configured")
		return
	}
	p.runLoop(ctx, "twitch", p.TwitchInterval, p.twitchTick)
}

// RunYouTube runs the upload loop until ctx is cancelled.
func (p *Poller) RunYouTube(ctx context.Context) {
	if p.YouTube == nil {
		slog.Info("youtube poller disabled: no client configured")
		return
	}
	p.runLoop(ctx, "youtube", p.YouTubeInterval, p.youtubeTick)
}

func (p *Poller) runLoop(ctx context.Context, platform string, interval time.Duration, tick func(context.Context)) {
	if p.Ready != nil {
		select {
		case <-ctx.Done():
			return
		case <-p.Ready:
		}
	}
	slog.Info("poller started", slog.String("platform", platform), slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		start := time.Now()
		tick(ctx)
		p.markTick(platform)
		if telemetry.PollTicks != nil {
			telemetry.PollTicks.WithLabelValues(platform).Inc()
		}
		if telemetry.TickDuration != nil {
			telemetry.TickDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
		}
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", slog.String("platform", platform))
			return
		case <-ticker.C:
		}
	}
}

type streamChange struct {
	guild, login, notified string
}

// twitchTick polls every tracked streamer once. A streamer whose session id
// differs from the recorded one gets exactly one dispatch; going offline
// clears the record silently so the next distinct session re-fires.
func (p *Poller) twitchTick(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "poll.twitch")
	defer span.End()

	cfg := p.Config.Snapshot()
	state := p.State.Snapshot()
	var changes []streamChange
	tracked := 0

	for _, guildID := range sortedKeys(cfg) {
		if ctx.Err() != nil {
			return
		}
		gc := cfg[guildID]
		if gc.Twitch == nil || len(gc.Twitch.Streamers) == 0 {
			continue
		}
		tracked += len(gc.Twitch.Streamers)
		if gc.Twitch.NotifChannel == 0 || gc.Twitch.NotifRole == 0 {
			slog.Debug("twitch notifications unconfigured, skipping guild", slog.String("guild", guildID))
			continue
		}
		if p.Guilds != nil && !p.Guilds.HasGuild(guildID) {
			slog.Debug("guild not resolvable, skipping", slog.String("guild", guildID))
			continue
		}
		channelID := store.FormatID(gc.Twitch.NotifChannel)
		roleID := store.FormatID(gc.Twitch.NotifRole)

		for _, login := range gc.Twitch.Streamers {
			if ctx.Err() != nil {
				return
			}
			st := state.Stream(guildID, login)
			var stream *twitchapi.Stream
			var err error
			telemetry.TimePlatformCall("twitch", func() {
				stream, err = p.Twitch.GetLiveStream(ctx, login)
			})
			if err != nil {
				slog.Debug("twitch poll failed", slog.String("guild", guildID), slog.String("login", login), slog.Any("err", err))
				p.noteError("twitch")
				continue
			}
			switch {
			case stream != nil && st.Notified != stream.SessionID:
				if p.Dispatcher.Dispatch(channelID, roleID, notify.LiveEvent(stream)) {
					slog.Info("live notification sent",
						slog.String("guild", guildID), slog.String("login", login), slog.String("session", stream.SessionID))
					changes = append(changes, streamChange{guildID, login, stream.SessionID})
					st.Notified = stream.SessionID
				}
			case stream == nil && st.Notified != "":
				// Stream ended; clear so the next session fires again.
				changes = append(changes, streamChange{guildID, login, ""})
				st.Notified = ""
			}
		}
	}
	telemetry.SetTrackedEntities("twitch", tracked)
	span.SetAttributes(attribute.Int("changes", len(changes)))

	if len(changes) == 0 || ctx.Err() != nil {
		return
	}
	if err := p.State.Update(func(d store.StateDoc) {
		for _, c := range changes {
			d.Stream(c.guild, c.login).Notified = c.notified
		}
	}); err != nil {
		slog.Error("twitch state write failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
	}
}

type videoChange struct {
	guild, raw, video string
	data              map[string]string
}

// youtubeTick polls every tracked channel once. The first poll of a freshly
// added channel dispatches its latest upload; operators accept this seeding
// behavior.
func (p *Poller) youtubeTick(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "poll.youtube")
	defer span.End()

	cfg := p.Config.Snapshot()
	state := p.State.Snapshot()
	var changes []videoChange
	tracked := 0

	for _, guildID := range sortedKeys(cfg) {
		if ctx.Err() != nil {
			return
		}
		gc := cfg[guildID]
		if gc.YouTube == nil || len(gc.YouTube.Channels) == 0 {
			continue
		}
		tracked += len(gc.YouTube.Channels)
		if gc.YouTube.NotifChannel == 0 || gc.YouTube.NotifRole == 0 {
			slog.Debug("youtube notifications unconfigured, skipping guild", slog.String("guild", guildID))
			continue
		}
		if p.Guilds != nil && !p.Guilds.HasGuild(guildID) {
			slog.Debug("guild not resolvable, skipping", slog.String("guild", guildID))
			continue
		}
		channelID := store.FormatID(gc.YouTube.NotifChannel)
		roleID := store.FormatID(gc.YouTube.NotifRole)

		for _, raw := range sortedKeys(gc.YouTube.Channels) {
			if ctx.Err() != nil {
				return
			}
			entry := gc.YouTube.Channels[raw]
			if entry.UploadsPlaylistID == "" {
				slog.Warn("tracked channel missing uploads playlist", slog.String("guild", guildID), slog.String("channel", raw))
				continue
			}
			st := state.Channel(guildID, raw)
			var latest *youtubeapi.Video
			var err error
			telemetry.TimePlatformCall("youtube", func() {
				latest, err = p.YouTube.LatestUpload(ctx, entry.UploadsPlaylistID)
			})
			if err != nil {
				slog.Debug("youtube poll failed", slog.String("guild", guildID), slog.String("channel", raw), slog.Any("err", err))
				p.noteError("youtube")
				continue
			}
			if latest == nil || latest.ID == st.LastVideo {
				continue
			}
			if p.Dispatcher.Dispatch(channelID, roleID, notify.VideoEvent(latest)) {
				slog.Info("upload notification sent",
					slog.String("guild", guildID), slog.String("channel", raw), slog.String("video", latest.ID))
				changes = append(changes, videoChange{
					guild: guildID,
					raw:   raw,
					video: latest.ID,
					data: map[string]string{
						"title":        latest.Title,
						"published_at": latest.PublishedAt,
						"url":          latest.URL(),
					},
				})
				st.LastVideo = latest.ID
			}
		}
	}
	telemetry.SetTrackedEntities("youtube", tracked)
	span.SetAttributes(attribute.Int("changes", len(changes)))

	if len(changes) == 0 || ctx.Err() != nil {
		return
	}
	if err := p.State.Update(func(d store.StateDoc) {
		for _, c := range changes {
			st := d.Channel(c.guild, c.raw)
			st.LastVideo = c.video
			st.LatestVideoData = c.data
		}
	}); err != nil {
		slog.Error("youtube state write failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
	}
}

// sortedKeys keeps per-tick iteration deterministic; Go maps randomize
// iteration and the JSON documents carry no insertion order.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
