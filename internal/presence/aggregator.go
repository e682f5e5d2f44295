package presence

import (
	"context"
	"log"
	"time"

	"github.com/you/presence-api/internal/core"
	"github.com/you/presence-api/internal/discord"
	"github.com/you/presence-api/internal/lanyard"
)

// ProfileSource is the subset of the Discord client the aggregator needs.
type ProfileSource interface {
	FetchUser(ctx context.Context) (discord.User, error)
	FetchGuildMember(ctx context.Context) (discord.GuildMember, error)
	AvatarURL(user discord.User) string
	BannerURL(user discord.User) string
}

// RelaySource is the subset of the Lanyard client the aggregator needs.
type RelaySource interface {
	FetchPresence(ctx context.Context) lanyard.Presence
}

// Aggregator merges the three upstream reads into one PresenceSnapshot.
type Aggregator struct {
	Discord ProfileSource
	Relay   RelaySource
	Now     func() time.Time
}

func NewAggregator(d ProfileSource, relay RelaySource) *Aggregator {
	return &Aggregator{Discord: d, Relay: relay, Now: time.Now}
}

// Snapshot builds the merged presence document. Only a profile-fetch failure
// short-circuits; guild membership and the relay each degrade independently.
func (a *Aggregator) Snapshot(ctx context.Context) core.PresenceSnapshot {
	now := a.now()

	user, err := a.Discord.FetchUser(ctx)
	if err != nil {
		log.Printf("presence: profile fetch failed: %v", err)
		return core.Offline()
	}

	member, err := a.Discord.FetchGuildMember(ctx)
	if err != nil {
		log.Printf("presence: member fetch failed, continuing without membership: %v", err)
		member = discord.GuildMember{}
	}

	relay := a.Relay.FetchPresence(ctx)

	activities := relay.Activities
	if relay.ListeningToSpotify && relay.Spotify != nil {
		activities = append([]lanyard.Activity{synthesizeSpotify(relay.Spotify, now)}, activities...)
	}

	activity, custom := Normalize(activities, now)

	snapshot := core.PresenceSnapshot{
		Status:        relay.Status,
		CustomStatus:  custom,
		Activity:      activity,
		Avatar:        a.Discord.AvatarURL(user),
		Banner:        a.Discord.BannerURL(user),
		Decoration:    discord.DecorationURL(user, member),
		ThemeColors:   user.ThemeColors,
		Badges:        a.badges(user, member, now),
		Username:      user.Username,
		GlobalName:    user.GlobalName,
		Discriminator: user.Discriminator,
		AccentColor:   user.AccentColor,
	}

	if member.PremiumSince != "" {
		premium := 2
		snapshot.PremiumType = &premium
	}

	return snapshot
}

// badges merges the flag badges with the membership-derived extras, in the
// same order the site has always shown them: flags, nitro, boost, username.
func (a *Aggregator) badges(user discord.User, member discord.GuildMember, now time.Time) []string {
	badges := discord.BadgePaths(user.PublicFlags)

	if member.PremiumSince != "" {
		badges = append(badges, discord.NitroBadgePath())
		if boost := discord.BoostBadgePath(member.PremiumSince, now); boost != "" {
			badges = append(badges, boost)
		}
	}

	if user.GlobalName != "" && user.Username != user.GlobalName {
		badges = append(badges, discord.UsernameBadgePath())
	}

	return badges
}

// synthesizeSpotify turns the relay's dedicated Spotify block into a raw
// listening activity so it outranks any generic listening activity in the
// normalizer.
func synthesizeSpotify(info *lanyard.SpotifyInfo, now time.Time) lanyard.Activity {
	activity := lanyard.Activity{
		Type:    2,
		Name:    "Spotify",
		Details: info.Song,
		State:   "by " + info.Artist,
		Assets: &lanyard.Assets{
			LargeImage: "spotify:" + info.AlbumArtID,
			LargeText:  info.Album,
			SmallImage: "spotify:spotify-logo",
			SmallText:  "Spotify",
		},
		SyncID:    info.TrackID,
		CreatedAt: now.UnixMilli(),
	}
	if info.Timestamps != nil {
		activity.Timestamps = &lanyard.Timestamps{Start: info.Timestamps.Start, End: info.Timestamps.End}
	}
	return activity
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
