package discord

import (
	"strconv"
	"time"
)

// badgeBit maps a public-flags bit position to its badge asset path.
type badgeBit struct {
	bit  uint
	path string
}

// Recognized bits in ascending order; output order follows this scan order.
var badgeBits = []badgeBit{
	{0, "/badges/discordstaff.svg"},
	{1, "/badges/discordpartner.svg"},
	{2, "/badges/hypesquadevents.svg"},
	{3, "/badges/discordbughunter1.svg"},
	{6, "/badges/hypesquadbravery.svg"},
	{7, "/badges/hypesquadbrilliance.svg"},
	{8, "/badges/hypesquadbalance.svg"},
	{9, "/badges/discordearlysupporter.svg"},
	{14, "/badges/discordbughunter2.svg"},
	{17, "/badges/discordbotdev.svg"},
	{18, "/badges/discordmod.svg"},
	{22, "/badges/activedeveloper.svg"},
}

const (
	nitroBadgePath    = "/badges/discordnitro.svg"
	usernameBadgePath = "/badges/username.png"
)

// BadgePaths resolves a public-flags field into badge asset paths. Unknown
// bits are ignored; the result is empty (never nil-checked) for flags=0.
func BadgePaths(flags int) []string {
	paths := make([]string, 0, len(badgeBits))
	for _, b := range badgeBits {
		if flags&(1<<b.bit) != 0 {
			paths = append(paths, b.path)
		}
	}
	return paths
}

// NitroBadgePath is appended when guild membership carries a premium_since.
func NitroBadgePath() string { return nitroBadgePath }

// UsernameBadgePath marks accounts migrated off the legacy discriminator
// system (global_name present and different from username).
func UsernameBadgePath() string { return usernameBadgePath }

// boost tier thresholds in whole months, highest first
var boostTiers = []struct {
	months int
	tier   int
}{
	{24, 9},
	{21, 8},
	{18, 7},
	{15, 6},
	{12, 5},
	{9, 4},
	{6, 3},
	{3, 2},
	{2, 1},
}

// BoostBadgePath converts a premium_since timestamp into the boost badge for
// its tier. A missing or unparseable timestamp yields "", never an error.
// Durations under two months still land in tier 1, matching the site's
// historical behavior.
func BoostBadgePath(premiumSince string, now time.Time) string {
	if premiumSince == "" {
		return ""
	}
	since, err := time.Parse(time.RFC3339, premiumSince)
	if err != nil {
		return ""
	}
	tier := boostTier(since, now)
	return boostBadgeForTier(tier)
}

// boostTier computes the whole-month difference (day-of-month ignored) and
// maps it through the threshold table.
func boostTier(since, now time.Time) int {
	months := (now.Year()-since.Year())*12 + int(now.Month()) - int(since.Month())
	for _, t := range boostTiers {
		if months >= t.months {
			return t.tier
		}
	}
	return 1
}

func boostBadgeForTier(tier int) string {
	if tier < 1 {
		tier = 1
	}
	if tier > 9 {
		tier = 9
	}
	return "/badges/boosts/discordboost" + strconv.Itoa(tier) + ".svg"
}
