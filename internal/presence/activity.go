// Package presence merges the Discord profile, guild membership, and the
// Lanyard relay into one snapshot, and reduces the raw activity list to the
// single most relevant activity for display.
package presence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/you/presence-api/internal/core"
	"github.com/you/presence-api/internal/lanyard"
)

var (
	mediaProxyBase = "https://media.discordapp.net"
	spotifyImgBase = "https://i.scdn.co/image"
	appAssetBase   = "https://cdn.discordapp.com/app-assets"
	emojiCDNBase   = "https://cdn.discordapp.com/emojis"
	trackLinkBase  = "https://open.spotify.com/track"
)

// kind is the closed variant set each raw activity is classified into once
// at ingestion. Ranking and rendering consume the kind, not the raw type
// code.
type kind int

const (
	kindStreaming kind = iota
	kindSpotify
	kindPlaying
	kindListening
	kindWatching
	kindCustom
	kindCompeting
	kindOther
)

const customStatusType = 4

// classify resolves the relay's numeric type code, with the Spotify case
// detected structurally: a generic listening activity named "Spotify".
func classify(a lanyard.Activity) kind {
	switch a.Type {
	case 0:
		return kindPlaying
	case 1:
		return kindStreaming
	case 2:
		if a.Name == "Spotify" {
			return kindSpotify
		}
		return kindListening
	case 3:
		return kindWatching
	case customStatusType:
		return kindCustom
	case 5:
		return kindCompeting
	default:
		return kindOther
	}
}

func (k kind) label() string {
	switch k {
	case kindStreaming:
		return "STREAMING"
	case kindSpotify:
		return "SPOTIFY"
	case kindPlaying:
		return "PLAYING"
	case kindListening:
		return "LISTENING"
	case kindWatching:
		return "WATCHING"
	case kindCustom:
		return "CUSTOM"
	case kindCompeting:
		return "COMPETING"
	default:
		return "PLAYING"
	}
}

// priority ranks activity kinds; lower wins. Unranked kinds share 99 and
// keep their input order through the stable sort.
func (k kind) priority() int {
	switch k {
	case kindStreaming:
		return 1
	case kindSpotify:
		return 2
	case kindPlaying:
		return 3
	case kindListening:
		return 4
	case kindWatching:
		return 5
	case kindCompeting:
		return 6
	default:
		return 99
	}
}

// Normalize partitions the raw activities into the custom status and the
// rest, ranks the rest, and reshapes the winner. Both results may be nil; a
// custom status alone never produces an ActivityView. It never fails:
// missing optional data degrades to zero values.
func Normalize(activities []lanyard.Activity, now time.Time) (*core.ActivityView, *core.CustomStatus) {
	var custom *core.CustomStatus
	rest := make([]lanyard.Activity, 0, len(activities))

	for _, a := range activities {
		if a.Type == customStatusType {
			if custom == nil {
				custom = customStatusFrom(a)
			}
			continue
		}
		rest = append(rest, a)
	}

	if len(rest) == 0 {
		return nil, custom
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return classify(rest[i]).priority() < classify(rest[j]).priority()
	})

	return activityViewFrom(rest[0], now), custom
}

func customStatusFrom(a lanyard.Activity) *core.CustomStatus {
	cs := &core.CustomStatus{State: a.State}
	if a.Emoji != nil {
		cs.Emoji = &core.StatusEmoji{
			Name:     a.Emoji.Name,
			ID:       a.Emoji.ID,
			Animated: a.Emoji.Animated,
			URL:      emojiURL(a.Emoji),
		}
	}
	return cs
}

// emojiURL derives the CDN URL for a custom emoji. Unicode emoji carry no id
// and get no URL.
func emojiURL(e *lanyard.Emoji) string {
	if e.ID == "" {
		return ""
	}
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return fmt.Sprintf("%s/%s.%s", emojiCDNBase, e.ID, ext)
}

func activityViewFrom(a lanyard.Activity, now time.Time) *core.ActivityView {
	k := classify(a)

	view := &core.ActivityView{
		Type:          k.label(),
		Name:          a.Name,
		Details:       a.Details,
		State:         a.State,
		ApplicationID: a.ApplicationID,
		Buttons:       buttonsOrEmpty(a.Buttons),
		URL:           a.URL,
		CreatedAt:     a.CreatedAt,
		Flags:         a.Flags,
		SyncID:        a.SyncID,
		SessionID:     a.SessionID,
		Platform:      a.Platform,
	}

	if view.CreatedAt == 0 {
		view.CreatedAt = now.UnixMilli()
	}

	if a.Timestamps != nil {
		view.Timestamps = &core.ActivityTimestamps{Start: a.Timestamps.Start, End: a.Timestamps.End}
	}
	if a.Party != nil {
		view.Party = &core.ActivityParty{ID: a.Party.ID, Size: append([]int(nil), a.Party.Size...)}
	}
	if a.Assets != nil {
		view.Assets = &core.ActivityAssets{
			LargeImage: rewriteAssetURL(a.Assets.LargeImage, a.ApplicationID),
			LargeText:  a.Assets.LargeText,
			SmallImage: rewriteAssetURL(a.Assets.SmallImage, a.ApplicationID),
			SmallText:  a.Assets.SmallText,
		}
	}

	// A Spotify activity with a track id links to the track itself, not
	// whatever URL the raw activity carried.
	if k == kindSpotify && a.SyncID != "" {
		view.URL = trackLinkBase + "/" + a.SyncID
	}

	return view
}

func buttonsOrEmpty(buttons []string) []string {
	if len(buttons) == 0 {
		return []string{}
	}
	return append([]string(nil), buttons...)
}

// rewriteAssetURL maps a raw asset reference to a fetchable image URL.
// "mp:" refs point at the media proxy, "spotify:" refs at the album-art CDN,
// and anything else is an application asset id.
func rewriteAssetURL(ref, applicationID string) string {
	if ref == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(ref, "mp:"); ok {
		return mediaProxyBase + "/" + rest
	}
	if rest, ok := strings.CutPrefix(ref, "spotify:"); ok {
		return spotifyImgBase + "/" + rest
	}
	return fmt.Sprintf("%s/%s/%s.png", appAssetBase, applicationID, ref)
}
