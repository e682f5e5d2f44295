// Package lanyard reads live Discord presence from the Lanyard relay
// (api.lanyard.rest). The relay is best-effort: any failure degrades to an
// offline presence instead of an error.
package lanyard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
}

// Presence is the relay's view of the user. The zero value plus
// Status "offline" is the degraded default.
type Presence struct {
	Status             string
	Activities         []Activity
	ListeningToSpotify bool
	Spotify            *SpotifyInfo
}

// Activity is the raw activity shape as the relay reports it. Fields are
// copied through untouched; normalization happens downstream.
type Activity struct {
	Type          int                 `json:"type"`
	Name          string              `json:"name"`
	Details       string              `json:"details,omitempty"`
	State         string              `json:"state,omitempty"`
	URL           string              `json:"url,omitempty"`
	ApplicationID string              `json:"application_id,omitempty"`
	Emoji         *Emoji              `json:"emoji,omitempty"`
	Assets        *Assets             `json:"assets,omitempty"`
	Timestamps    *Timestamps         `json:"timestamps,omitempty"`
	Party         *Party              `json:"party,omitempty"`
	Buttons       []string            `json:"buttons,omitempty"`
	CreatedAt     int64               `json:"created_at,omitempty"`
	Flags         int                 `json:"flags,omitempty"`
	SyncID        string              `json:"sync_id,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
	Platform      string              `json:"platform,omitempty"`
}

type Emoji struct {
	Name     string `json:"name"`
	ID       string `json:"id,omitempty"`
	Animated bool   `json:"animated,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type Party struct {
	ID   string `json:"id,omitempty"`
	Size []int  `json:"size,omitempty"`
}

// SpotifyInfo is the relay's dedicated Spotify listening block.
type SpotifyInfo struct {
	Song       string      `json:"song"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album"`
	AlbumArtID string      `json:"album_art_id"`
	TrackID    string      `json:"track_id"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		DiscordStatus      string       `json:"discord_status"`
		Activities         []Activity   `json:"activities"`
		ListeningToSpotify bool         `json:"listening_to_spotify"`
		Spotify            *SpotifyInfo `json:"spotify"`
	} `json:"data"`
}

func New(baseURL, userID string) *Client {
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

// OfflinePresence is what callers get when the relay cannot be consulted.
func OfflinePresence() Presence {
	return Presence{Status: "offline"}
}

// FetchPresence returns the relay's presence, or the offline default on any
// transport, status, or envelope failure. It never returns an error; the
// failure is logged and absorbed here.
func (c *Client) FetchPresence(ctx context.Context) Presence {
	endpoint := fmt.Sprintf("%s/v1/users/%s", strings.TrimSuffix(c.BaseURL, "/"), c.UserID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Printf("lanyard: build request: %v", err)
		return OfflinePresence()
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		log.Printf("lanyard: fetch presence: %v", err)
		return OfflinePresence()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("lanyard: fetch presence: status %d", resp.StatusCode)
		return OfflinePresence()
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Printf("lanyard: decode presence: %v", err)
		return OfflinePresence()
	}
	if !env.Success {
		return OfflinePresence()
	}

	status := env.Data.DiscordStatus
	if status == "" {
		status = "offline"
	}

	return Presence{
		Status:             status,
		Activities:         env.Data.Activities,
		ListeningToSpotify: env.Data.ListeningToSpotify,
		Spotify:            env.Data.Spotify,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
