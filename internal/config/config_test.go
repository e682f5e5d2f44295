package config

import (
	"errors"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DISCORD_BOT_TOKEN", "DISCORD_USER_ID", "DISCORD_ID", "DISCORD_GUILD_ID",
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN",
		"SPOTIFY_REFRESH_TOKEN_FILE", "SPOTIFY_REDIRECT_URI",
		"LANYARD_BASE_URL", "PRESENCE_HTTP_ADDR", "PRESENCE_ADMIN_ADDR",
		"PRESENCE_CORS_ORIGINS", "PRESENCE_RATE_RPS", "PRESENCE_RATE_BURST",
		"PRESENCE_METRICS", "PRESENCE_ACCESS_LOG", "PRESENCE_POLL_INTERVAL_MS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected default addr %q", cfg.HTTP.Addr)
	}
	if cfg.Lanyard.BaseURL != "https://api.lanyard.rest" {
		t.Fatalf("unexpected lanyard base %q", cfg.Lanyard.BaseURL)
	}
	if cfg.HTTP.RateRPS != 20 || cfg.HTTP.RateBurst != 40 {
		t.Fatalf("unexpected rate defaults: %d/%d", cfg.HTTP.RateRPS, cfg.HTTP.RateBurst)
	}
	if !cfg.HTTP.Metrics || !cfg.HTTP.AccessLog {
		t.Fatal("metrics and access log should default on")
	}
	if cfg.PollInterval().Milliseconds() != 15000 {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "bot")
	t.Setenv("DISCORD_USER_ID", "111")
	t.Setenv("DISCORD_GUILD_ID", "222")
	t.Setenv("SPOTIFY_CLIENT_ID", "cid")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "sec")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "ref")
	t.Setenv("PRESENCE_HTTP_ADDR", ":9999")
	t.Setenv("PRESENCE_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PRESENCE_RATE_RPS", "5")
	t.Setenv("PRESENCE_METRICS", "false")
	t.Setenv("PRESENCE_POLL_INTERVAL_MS", "2500")

	cfg := Load()
	if cfg.HTTP.Addr != ":9999" {
		t.Fatalf("unexpected addr %q", cfg.HTTP.Addr)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.HTTP.RateRPS != 5 {
		t.Fatalf("unexpected rps %d", cfg.HTTP.RateRPS)
	}
	if cfg.HTTP.Metrics {
		t.Fatal("metrics should be off")
	}
	if cfg.PollInterval().Milliseconds() != 2500 {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadZeroDisablesRateLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRESENCE_RATE_RPS", "0")
	t.Setenv("PRESENCE_RATE_BURST", "0")
	t.Setenv("PRESENCE_POLL_INTERVAL_MS", "0")

	cfg := Load()
	if cfg.HTTP.RateRPS != 0 || cfg.HTTP.RateBurst != 0 {
		t.Fatalf("zero must pass through for rate knobs, got %d/%d", cfg.HTTP.RateRPS, cfg.HTTP.RateBurst)
	}
	// A zero poll interval still falls back to the default downstream.
	if cfg.PollInterval().Milliseconds() != 15000 {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}

	t.Setenv("PRESENCE_RATE_RPS", "-3")
	if got := Load().HTTP.RateRPS; got != 20 {
		t.Fatalf("negative value must fall back to default, got %d", got)
	}
}

func TestLoadLegacyDiscordIDFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_ID", "333")

	if cfg := Load(); cfg.Discord.UserID != "333" {
		t.Fatalf("expected DISCORD_ID fallback, got %q", cfg.Discord.UserID)
	}
}

func TestValidateReportsAllMissing(t *testing.T) {
	clearEnv(t)

	err := Load().Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingError, got %T", err)
	}
	for _, want := range []string{"DISCORD_BOT_TOKEN", "DISCORD_USER_ID", "DISCORD_GUILD_ID", "SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidateRefreshTokenFileSuffices(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "bot")
	t.Setenv("DISCORD_USER_ID", "111")
	t.Setenv("DISCORD_GUILD_ID", "222")
	t.Setenv("SPOTIFY_CLIENT_ID", "cid")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "sec")
	t.Setenv("SPOTIFY_REFRESH_TOKEN_FILE", "/run/secrets/spotify")

	if err := Load().Validate(); err != nil {
		t.Fatalf("token file should satisfy validation, got %v", err)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "super-secret-bot-token")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "super-secret-client")

	out := string(Load().RedactedJSON())
	if strings.Contains(out, "super-secret") {
		t.Fatalf("redacted output leaked a secret: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Fatalf("expected redaction markers, got %s", out)
	}
}
