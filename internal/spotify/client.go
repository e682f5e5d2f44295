package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/you/presence-api/internal/core"
)

var apiBaseURL = "https://api.spotify.com"

const defaultClientTimeout = 10 * time.Second

// Client reads the currently-playing track with tokens from a TokenSource.
type Client struct {
	Tokens *TokenSource
	HTTP   *http.Client
	Now    func() time.Time
}

// currentlyPlaying is the wire shape of the player endpoint.
type currentlyPlaying struct {
	IsPlaying  bool       `json:"is_playing"`
	ProgressMS int        `json:"progress_ms"`
	Item       *trackItem `json:"item"`
}

type trackItem struct {
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func NewClient(tokens *TokenSource) *Client {
	return &Client{
		Tokens: tokens,
		HTTP:   &http.Client{Timeout: defaultClientTimeout},
		Now:    time.Now,
	}
}

// CurrentlyPlaying fetches the player state. A paused player, an empty
// player (204), and rate limiting (429) all come back as isPlaying=false
// with no error; credential or transport failures are returned to the
// caller, whose endpoint answers 500.
func (c *Client) CurrentlyPlaying(ctx context.Context) (core.NowPlaying, error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return core.NowPlaying{}, err
	}

	endpoint := strings.TrimSuffix(apiBaseURL, "/") + "/v1/me/player/currently-playing"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.NowPlaying{}, errors.Wrap(err, "spotify: build player request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return core.NowPlaying{}, errors.Wrap(err, "spotify: fetch player")
	}
	defer resp.Body.Close()

	now := c.now().UnixMilli()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return core.NowPlaying{IsPlaying: false, Timestamp: now}, nil
	case http.StatusTooManyRequests:
		// The rate-limit response is the bare not-playing shape, no
		// timestamp; only the empty-player case carries one.
		return core.NowPlaying{IsPlaying: false}, nil
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return core.NowPlaying{}, fmt.Errorf("spotify: player status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed currentlyPlaying
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return core.NowPlaying{}, errors.Wrap(err, "spotify: decode player response")
	}

	playing := core.NowPlaying{
		IsPlaying: parsed.IsPlaying,
		Timestamp: now,
	}

	if parsed.Item != nil {
		playing.Title = parsed.Item.Name
		playing.Artist = parsed.Item.joinedArtists()
		if len(parsed.Item.Album.Images) > 0 {
			playing.AlbumImageURL = parsed.Item.Album.Images[0].URL
		}
		playing.SongURL = parsed.Item.ExternalURLs.Spotify
		progress := parsed.ProgressMS
		duration := parsed.Item.DurationMS
		playing.ProgressMS = &progress
		playing.DurationMS = &duration
	}

	return playing, nil
}

func (t *trackItem) joinedArtists() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
