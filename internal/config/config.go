package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Discord DiscordConfig
	Spotify SpotifyConfig
	Lanyard LanyardConfig
	HTTP    HTTPConfig
	Poll    PollConfig
}

type DiscordConfig struct {
	BotToken string
	UserID   string
	GuildID  string
}

type SpotifyConfig struct {
	ClientID         string
	ClientSecret     string
	RefreshToken     string
	RefreshTokenFile string
	RedirectURI      string
}

type LanyardConfig struct {
	BaseURL string
}

type HTTPConfig struct {
	Addr        string
	AdminAddr   string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
	Metrics     bool
	AccessLog   bool
}

type PollConfig struct {
	IntervalMS int
}

const (
	defaultAddr        = ":8080"
	defaultLanyardBase = "https://api.lanyard.rest"
	defaultRateRPS     = 20
	defaultRateBurst   = 40
	defaultPollMS      = 15000
)

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Discord.BotToken = strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN"))
	cfg.Discord.UserID = strings.TrimSpace(os.Getenv("DISCORD_USER_ID"))
	if cfg.Discord.UserID == "" {
		cfg.Discord.UserID = strings.TrimSpace(os.Getenv("DISCORD_ID"))
	}
	cfg.Discord.GuildID = strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID"))

	cfg.Spotify.ClientID = strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_ID"))
	cfg.Spotify.ClientSecret = strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_SECRET"))
	cfg.Spotify.RefreshToken = strings.TrimSpace(os.Getenv("SPOTIFY_REFRESH_TOKEN"))
	cfg.Spotify.RefreshTokenFile = strings.TrimSpace(os.Getenv("SPOTIFY_REFRESH_TOKEN_FILE"))
	cfg.Spotify.RedirectURI = strings.TrimSpace(os.Getenv("SPOTIFY_REDIRECT_URI"))

	cfg.Lanyard.BaseURL = strings.TrimSpace(os.Getenv("LANYARD_BASE_URL"))
	if cfg.Lanyard.BaseURL == "" {
		cfg.Lanyard.BaseURL = defaultLanyardBase
	}

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("PRESENCE_HTTP_ADDR"))
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultAddr
	}
	cfg.HTTP.AdminAddr = strings.TrimSpace(os.Getenv("PRESENCE_ADMIN_ADDR"))
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("PRESENCE_CORS_ORIGINS"))
	cfg.HTTP.RateRPS = readInt("PRESENCE_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateBurst = readInt("PRESENCE_RATE_BURST", defaultRateBurst)
	cfg.HTTP.Metrics = readBool("PRESENCE_METRICS", true)
	cfg.HTTP.AccessLog = readBool("PRESENCE_ACCESS_LOG", true)

	cfg.Poll.IntervalMS = readInt("PRESENCE_POLL_INTERVAL_MS", defaultPollMS)

	return cfg
}

// MissingError reports every required credential absent from the environment.
// It is fatal at startup; nothing in the service substitutes a default for a
// missing secret.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("config: missing required settings: %s", strings.Join(e.Fields, ", "))
}

func (c Config) Validate() error {
	var missing []string
	if c.Discord.BotToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if c.Discord.UserID == "" {
		missing = append(missing, "DISCORD_USER_ID")
	}
	if c.Discord.GuildID == "" {
		missing = append(missing, "DISCORD_GUILD_ID")
	}
	if c.Spotify.ClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}
	if c.Spotify.ClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}
	if c.Spotify.RefreshToken == "" && c.Spotify.RefreshTokenFile == "" {
		missing = append(missing, "SPOTIFY_REFRESH_TOKEN (or SPOTIFY_REFRESH_TOKEN_FILE)")
	}
	if len(missing) > 0 {
		return &MissingError{Fields: missing}
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	if c.Poll.IntervalMS <= 0 {
		return time.Duration(defaultPollMS) * time.Millisecond
	}
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// Redacted returns a loggable view of the config with every secret masked.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"discord": map[string]any{
			"bot_token": redactString(c.Discord.BotToken),
			"user_id":   c.Discord.UserID,
			"guild_id":  c.Discord.GuildID,
		},
		"spotify": map[string]any{
			"client_id":          redactString(c.Spotify.ClientID),
			"client_secret":      redactString(c.Spotify.ClientSecret),
			"refresh_token":      redactString(c.Spotify.RefreshToken),
			"refresh_token_file": c.Spotify.RefreshTokenFile,
			"redirect_uri":       c.Spotify.RedirectURI,
		},
		"lanyard": map[string]any{
			"base_url": c.Lanyard.BaseURL,
		},
		"http": map[string]any{
			"addr":         c.HTTP.Addr,
			"admin_addr":   c.HTTP.AdminAddr,
			"cors_origins": append([]string(nil), c.HTTP.CORSOrigins...),
			"rate_rps":     c.HTTP.RateRPS,
			"rate_burst":   c.HTTP.RateBurst,
			"metrics":      c.HTTP.Metrics,
			"access_log":   c.HTTP.AccessLog,
		},
		"poll": map[string]any{
			"interval_ms": c.Poll.IntervalMS,
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// readInt accepts zero: a zero rate disables limiting, and downstream
// consumers of the poll interval substitute their own default for zero.
// Negative or unparseable values fall back to the default.
func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
