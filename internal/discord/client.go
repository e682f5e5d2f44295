package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	apiBaseURL = "https://discord.com/api/v10"
	cdnBaseURL = "https://cdn.discordapp.com"
)

const defaultTimeout = 10 * time.Second

// Client talks to the Discord REST API with a bot token.
type Client struct {
	BotToken string
	UserID   string
	GuildID  string
	HTTP     *http.Client
}

// User is the profile document returned by the users endpoint.
type User struct {
	Username             string            `json:"username"`
	GlobalName           string            `json:"global_name"`
	Discriminator        string            `json:"discriminator"`
	Avatar               string            `json:"avatar"`
	Banner               string            `json:"banner"`
	AccentColor          *int              `json:"accent_color"`
	PublicFlags          int               `json:"public_flags"`
	ThemeColors          []int             `json:"theme_colors"`
	AvatarDecorationData *AvatarDecoration `json:"avatar_decoration_data"`
}

// GuildMember carries the guild-scoped fields the snapshot needs. The zero
// value is a valid "no membership data" default.
type GuildMember struct {
	PremiumSince         string            `json:"premium_since"`
	AvatarDecorationData *AvatarDecoration `json:"avatar_decoration_data"`
}

type AvatarDecoration struct {
	Asset string `json:"asset"`
}

func New(botToken, userID, guildID string) *Client {
	return &Client{
		BotToken: botToken,
		UserID:   userID,
		GuildID:  guildID,
		HTTP:     &http.Client{Timeout: defaultTimeout},
	}
}

// FetchUser loads the owner's profile. Any failure here is fatal for the
// snapshot; the aggregator answers offline without consulting the other
// sources.
func (c *Client) FetchUser(ctx context.Context) (User, error) {
	var user User
	endpoint := fmt.Sprintf("%s/users/%s?with_profile=true", strings.TrimSuffix(apiBaseURL, "/"), c.UserID)
	if err := c.get(ctx, endpoint, &user); err != nil {
		return User{}, errors.Wrap(err, "discord: fetch user")
	}
	return user, nil
}

// FetchGuildMember loads the owner's membership in the configured guild.
// Callers tolerate failure and proceed with a zero member.
func (c *Client) FetchGuildMember(ctx context.Context) (GuildMember, error) {
	var member GuildMember
	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", strings.TrimSuffix(apiBaseURL, "/"), c.GuildID, c.UserID)
	if err := c.get(ctx, endpoint, &member); err != nil {
		return GuildMember{}, errors.Wrap(err, "discord: fetch guild member")
	}
	return member, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+strings.TrimSpace(c.BotToken))

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// AvatarURL builds the CDN URL for the user's avatar, or "" without one.
func (c *Client) AvatarURL(user User) string {
	if user.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png?size=256", cdnBaseURL, c.UserID, user.Avatar)
}

// BannerURL builds the CDN URL for the user's profile banner, or "".
func (c *Client) BannerURL(user User) string {
	if user.Banner == "" {
		return ""
	}
	return fmt.Sprintf("%s/banners/%s/%s.png?size=600", cdnBaseURL, c.UserID, user.Banner)
}

// DecorationURL resolves the avatar decoration, preferring the profile-level
// decoration over the guild member's.
func DecorationURL(user User, member GuildMember) string {
	asset := ""
	if user.AvatarDecorationData != nil && user.AvatarDecorationData.Asset != "" {
		asset = user.AvatarDecorationData.Asset
	} else if member.AvatarDecorationData != nil && member.AvatarDecorationData.Asset != "" {
		asset = member.AvatarDecorationData.Asset
	}
	if asset == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatar-decoration-presets/%s.png?size=96&passthrough=true", cdnBaseURL, asset)
}
