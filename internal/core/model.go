package core

// PresenceSnapshot is the merged presence document served to the frontend.
// It is rebuilt from the upstream sources on every request and never stored.
type PresenceSnapshot struct {
	Status        string        `json:"status"`
	CustomStatus  *CustomStatus `json:"custom_status,omitempty"`
	Activity      *ActivityView `json:"activity,omitempty"`
	Avatar        string        `json:"avatar,omitempty"`
	Banner        string        `json:"banner,omitempty"`
	Decoration    string        `json:"decoration,omitempty"`
	ThemeColors   []int         `json:"theme_colors,omitempty"`
	Badges        []string      `json:"badges,omitempty"`
	Username      string        `json:"username,omitempty"`
	GlobalName    string        `json:"global_name,omitempty"`
	Discriminator string        `json:"discriminator,omitempty"`
	AccentColor   *int          `json:"accent_color,omitempty"`
	PremiumType   *int          `json:"premium_type,omitempty"`
}

// Offline is the degraded snapshot served whenever the profile fetch fails.
func Offline() PresenceSnapshot {
	return PresenceSnapshot{Status: "offline"}
}

// CustomStatus is the free-text status message, kept separate from Activity.
type CustomStatus struct {
	State string       `json:"state,omitempty"`
	Emoji *StatusEmoji `json:"emoji,omitempty"`
}

type StatusEmoji struct {
	Name     string `json:"name,omitempty"`
	ID       string `json:"id,omitempty"`
	Animated bool   `json:"animated"`
	URL      string `json:"url,omitempty"`
}

// ActivityView is the single most relevant activity, reshaped for display.
type ActivityView struct {
	Type          string              `json:"type"`
	Name          string              `json:"name,omitempty"`
	Details       string              `json:"details,omitempty"`
	State         string              `json:"state,omitempty"`
	Timestamps    *ActivityTimestamps `json:"timestamps,omitempty"`
	ApplicationID string              `json:"application_id,omitempty"`
	Assets        *ActivityAssets     `json:"assets,omitempty"`
	Buttons       []string            `json:"buttons"`
	URL           string              `json:"url,omitempty"`
	CreatedAt     int64               `json:"created_at"`
	Flags         int                 `json:"flags"`
	Party         *ActivityParty      `json:"party,omitempty"`
	SyncID        string              `json:"sync_id,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
	Platform      string              `json:"platform,omitempty"`
}

type ActivityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type ActivityAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

type ActivityParty struct {
	ID   string `json:"id,omitempty"`
	Size []int  `json:"size,omitempty"` // [current, max]
}

// NowPlaying mirrors the now-playing endpoint's response body. The camelCase
// tags (and the _timestamp field) match what the frontend already consumes.
type NowPlaying struct {
	IsPlaying     bool   `json:"isPlaying"`
	Title         string `json:"title,omitempty"`
	Artist        string `json:"artist,omitempty"`
	AlbumImageURL string `json:"albumImageUrl,omitempty"`
	SongURL       string `json:"songUrl,omitempty"`
	ProgressMS    *int   `json:"progress,omitempty"`
	DurationMS    *int   `json:"duration,omitempty"`
	Timestamp     int64  `json:"_timestamp,omitempty"`
}
