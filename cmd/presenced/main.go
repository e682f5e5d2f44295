package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/you/presence-api/internal/config"
	"github.com/you/presence-api/internal/discord"
	"github.com/you/presence-api/internal/httpadmin"
	"github.com/you/presence-api/internal/httpapi"
	"github.com/you/presence-api/internal/lanyard"
	"github.com/you/presence-api/internal/presence"
	"github.com/you/presence-api/internal/spotify"
	"github.com/you/presence-api/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag     bool
		httpAddr        string
		adminAddr       string
		httpCorsOrigins string
		httpRateRPS     int
		httpRateBurst   int
		httpMetrics     bool
		httpAccessLog   bool
		discordUserID   string
		discordGuildID  string
		lanyardBase     string
		refreshFile     string
		redirectURI     string
		pollIntervalMS  int
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (e.g., :8080)")
	flag.StringVar(&adminAddr, "admin-addr", "", "Admin listen address (empty disables admin endpoints)")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 20, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 40, "Burst size for HTTP rate limiter")
	flag.BoolVar(&httpMetrics, "http-metrics", true, "Expose Prometheus metrics endpoint")
	flag.BoolVar(&httpAccessLog, "http-access-log", true, "Log HTTP access records")
	flag.StringVar(&discordUserID, "discord-user-id", "", "Discord user id whose presence is served")
	flag.StringVar(&discordGuildID, "discord-guild-id", "", "Guild id used for membership lookups")
	flag.StringVar(&lanyardBase, "lanyard-base-url", "", "Base URL of the Lanyard presence relay")
	flag.StringVar(&refreshFile, "spotify-refresh-token-file", "", "Path to file containing the Spotify refresh token")
	flag.StringVar(&redirectURI, "spotify-redirect-uri", "", "OAuth redirect URI for the authorization flow")
	flag.IntVar(&pollIntervalMS, "poll-interval-ms", 0, "Presence poll interval for the stream endpoints")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"presenced version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()

	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["admin-addr"] {
		cfg.HTTP.AdminAddr = strings.TrimSpace(adminAddr)
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, o := range strings.Split(httpCorsOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, o)
			}
		}
	}
	if overrides["http-rate-rps"] {
		cfg.HTTP.RateRPS = httpRateRPS
	}
	if overrides["http-rate-burst"] {
		cfg.HTTP.RateBurst = httpRateBurst
	}
	if overrides["http-metrics"] {
		cfg.HTTP.Metrics = httpMetrics
	}
	if overrides["http-access-log"] {
		cfg.HTTP.AccessLog = httpAccessLog
	}
	if overrides["discord-user-id"] {
		cfg.Discord.UserID = strings.TrimSpace(discordUserID)
	}
	if overrides["discord-guild-id"] {
		cfg.Discord.GuildID = strings.TrimSpace(discordGuildID)
	}
	if overrides["lanyard-base-url"] {
		cfg.Lanyard.BaseURL = strings.TrimSpace(lanyardBase)
	}
	if overrides["spotify-refresh-token-file"] {
		cfg.Spotify.RefreshTokenFile = strings.TrimSpace(refreshFile)
	}
	if overrides["spotify-redirect-uri"] {
		cfg.Spotify.RedirectURI = strings.TrimSpace(redirectURI)
	}
	if overrides["poll-interval-ms"] {
		cfg.Poll.IntervalMS = pollIntervalMS
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Printf("starting presenced %s\n%s", version.Version, cfg.RedactedJSON())

	discordClient := discord.New(cfg.Discord.BotToken, cfg.Discord.UserID, cfg.Discord.GuildID)
	relayClient := lanyard.New(cfg.Lanyard.BaseURL, cfg.Discord.UserID)
	aggregator := presence.NewAggregator(discordClient, relayClient)

	tokens := spotify.NewTokenSource(
		cfg.Spotify.ClientID,
		cfg.Spotify.ClientSecret,
		cfg.Spotify.RefreshToken,
		cfg.Spotify.RefreshTokenFile,
	)
	if cfg.Spotify.RefreshTokenFile != "" {
		if err := tokens.WatchRefreshTokenFile(cfg.Spotify.RefreshTokenFile); err != nil {
			log.Printf("spotify: watch refresh token file: %v", err)
		}
	}
	player := spotify.NewClient(tokens)

	var authorizer *spotify.Authorizer
	if cfg.Spotify.RedirectURI != "" {
		authorizer = &spotify.Authorizer{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RedirectURI:  cfg.Spotify.RedirectURI,
		}
	}

	api := httpapi.New(aggregator, player, authorizer, httpapi.Options{
		Addr:         cfg.HTTP.Addr,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		RateRPS:      cfg.HTTP.RateRPS,
		RateBurst:    cfg.HTTP.RateBurst,
		Metrics:      cfg.HTTP.Metrics,
		AccessLog:    cfg.HTTP.AccessLog,
		Build:        buildInfo(),
		RefreshCalls: tokens.RefreshCalls,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := presence.NewPoller(aggregator, cfg.PollInterval(), api.Broadcast)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("poller stopped: %v", err)
		}
	}()

	var adminServer *http.Server
	if cfg.HTTP.AdminAddr != "" {
		adminMux := http.NewServeMux()
		httpadmin.New(tokens, cfg.RedactedJSON).Register(adminMux)
		adminServer = &http.Server{
			Addr:              cfg.HTTP.AdminAddr,
			Handler:           adminMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("admin api listening on %s", cfg.HTTP.AdminAddr)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("admin server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start()
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Printf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if adminServer != nil {
		_ = adminServer.Shutdown(shutdownCtx)
	}
}

func buildInfo() httpapi.BuildInfo {
	info := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
		info.BuiltAt = t
	}
	return info
}
