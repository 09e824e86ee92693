// Package youtubeapi wraps the YouTube Data API v3 for channel resolution and
// upload discovery. All calls are API-key authenticated; a missing key means
// the whole platform is disabled and no Client is ever constructed.
package youtubeapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var channelIDPattern = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// Titles matching any of these fragments are skipped as live content before
// spending a videos.list call on them. The detail call is the authoritative
// signal; this is only the cheap fast-path.
var liveTitleFragments = []string{"live stream", "livestream", "live now", "streaming now"}

// ChannelInfo is the resolved identity of a channel plus its uploads playlist,
// persisted alongside the config entry so it never needs re-fetching.
type ChannelInfo struct {
	ID                string
	Title             string
	Thumbnail         string
	UploadsPlaylistID string
}

// Video is one upload considered for notification.
type Video struct {
	ID           string
	Title        string
	Description  string
	Thumbnail    string
	PublishedAt  string
	ChannelTitle string
}

// URL returns the public watch URL.
func (v *Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Client wraps the generated YouTube service.
type Client struct {
	svc *yt.Service
}

// New builds a Client with the given API key. Extra options are for tests
// (endpoint/http client overrides).
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing youtube api key")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ResolveChannel turns arbitrary user input into a canonical UC… channel id.
// Deterministic forms (raw id, /channel/ URL) are tried before anything that
// costs API quota; free-text search is the last resort.
func (c *Client) ResolveChannel(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty channel reference")
	}

	// Raw channel id.
	if channelIDPattern.MatchString(input) {
		return input, nil
	}

	// URL forms.
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		path := strings.Trim(u.Path, "/")
		switch {
		case strings.HasPrefix(path, "channel/"):
			id := strings.SplitN(strings.TrimPrefix(path, "channel/"), "/", 2)[0]
			if channelIDPattern.MatchString(id) {
				return id, nil
			}
			return "", fmt.Errorf("malformed channel URL: %s", input)
		case strings.HasPrefix(path, "user/"):
			name := strings.SplitN(strings.TrimPrefix(path, "user/"), "/", 2)[0]
			return c.channelByUsername(ctx, name)
		case strings.HasPrefix(path, "@"):
			return c.channelBySearch(ctx, strings.SplitN(path, "/", 2)[0])
		case path == "watch":
			if vid := u.Query().Get("v"); vid != "" {
				return c.channelByVideo(ctx, vid)
			}
		}
	}

	// Bare handle.
	if strings.HasPrefix(input, "@") {
		return c.channelBySearch(ctx, input)
	}

	// Free-text search.
	return c.channelBySearch(ctx, input)
}

func (c *Client) channelByUsername(ctx context.Context, username string) (string, error) {
	resp, err := c.svc.Channels.List([]string{"id"}).ForUsername(username).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("channels.list forUsername: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("no channel for username %q", username)
	}
	return resp.Items[0].Id, nil
}

func (c *Client) channelBySearch(ctx context.Context, query string) (string, error) {
	resp, err := c.svc.Search.List([]string{"snippet"}).Q(query).Type("channel").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return "", fmt.Errorf("no channel found for %q", query)
	}
	return resp.Items[0].Snippet.ChannelId, nil
}

func (c *Client) channelByVideo(ctx context.Context, videoID string) (string, error) {
	resp, err := c.svc.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return "", fmt.Errorf("no video %q", videoID)
	}
	return resp.Items[0].Snippet.ChannelId, nil
}

// GetChannelInfo fetches the channel's title, thumbnail and uploads playlist.
func (c *Client) GetChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error) {
	resp, err := c.svc.Channels.List([]string{"snippet", "contentDetails"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("channels.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel %q not found", channelID)
	}
	item := resp.Items[0]
	info := &ChannelInfo{ID: item.Id}
	if item.Snippet != nil {
		info.Title = item.Snippet.Title
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
			info.Thumbnail = item.Snippet.Thumbnails.High.Url
		}
	}
	if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
		info.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	}
	if info.UploadsPlaylistID == "" {
		return nil, fmt.Errorf("channel %q has no uploads playlist", channelID)
	}
	return info, nil
}

// LatestUpload pages the uploads playlist (up to 10 recent items) and returns
// the newest upload that is not live content, or nil when nothing qualifies.
//
// Two-layer filter: a title heuristic skips obvious streams without spending
// quota; a videos.list call then checks liveStreamingDetails and
// liveBroadcastContent. If the detail call fails the item is accepted
// optimistically: better to notify than to silently drop an upload.
func (c *Client) LatestUpload(ctx context.Context, uploadsPlaylistID string) (*Video, error) {
	resp, err := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(uploadsPlaylistID).MaxResults(10).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("playlistItems.list: %w", err)
	}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.ContentDetails == nil {
			continue
		}
		videoID := item.ContentDetails.VideoId
		if videoID == "" {
			continue
		}
		if looksLive(item.Snippet.Title) {
			slog.Debug("skipping live-titled upload", slog.String("video", videoID), slog.String("title", item.Snippet.Title))
			continue
		}
		live, err := c.isLiveContent(ctx, videoID)
		if err != nil {
			slog.Debug("live-detail check failed, accepting optimistically", slog.String("video", videoID), slog.Any("err", err))
		} else if live {
			slog.Debug("skipping live upload", slog.String("video", videoID))
			continue
		}
		v := &Video{
			ID:           videoID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			PublishedAt:  item.Snippet.PublishedAt,
			ChannelTitle: item.Snippet.ChannelTitle,
		}
		if item.Snippet.Thumbnails != nil {
			if item.Snippet.Thumbnails.High != nil {
				v.Thumbnail = item.Snippet.Thumbnails.High.Url
			} else if item.Snippet.Thumbnails.Default != nil {
				v.Thumbnail = item.Snippet.Thumbnails.Default.Url
			}
		}
		return v, nil
	}
	return nil, nil
}

func (c *Client) isLiveContent(ctx context.Context, videoID string) (bool, error) {
	resp, err := c.svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return false, err
	}
	if len(resp.Items) == 0 {
		return false, fmt.Errorf("video %q not found", videoID)
	}
	v := resp.Items[0]
	if v.LiveStreamingDetails != nil {
		return true, nil
	}
	if v.Snippet != nil && v.Snippet.LiveBroadcastContent != "" && v.Snippet.LiveBroadcastContent != "none" {
		return true, nil
	}
	return false, nil
}

func looksLive(title string) bool {
	lower := strings.ToLower(title)
	for _, frag := range liveTitleFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
