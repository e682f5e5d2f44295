// Package httpapi serves the presence and now-playing endpoints plus the
// SSE/WebSocket snapshot streams.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/you/presence-api/internal/core"
	"github.com/you/presence-api/internal/spotify"
)

// SnapshotSource builds the merged presence document.
type SnapshotSource interface {
	Snapshot(ctx context.Context) core.PresenceSnapshot
}

// Player reads the currently-playing track.
type Player interface {
	CurrentlyPlaying(ctx context.Context) (core.NowPlaying, error)
}

type Server struct {
	httpServer *http.Server
	snapshots  SnapshotSource
	player     Player
	authorizer *spotify.Authorizer
	opts       Options
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy
	wsOrigins  []string

	mu      sync.Mutex
	clients map[chan core.PresenceSnapshot]struct{}
	last    *core.PresenceSnapshot
	closed  bool
}

type Options struct {
	Addr        string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
	Metrics     bool
	AccessLog   bool
	Build       BuildInfo

	// RefreshCalls, when set, is exported as a gauge on the metrics
	// endpoint.
	RefreshCalls func() int64
}

func New(snapshots SnapshotSource, player Player, authorizer *spotify.Authorizer, opts Options) *Server {
	srv := &Server{
		snapshots:  snapshots,
		player:     player,
		authorizer: authorizer,
		opts:       opts,
		clients:    make(map[chan core.PresenceSnapshot]struct{}),
		limiter:    newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		cors:       newCORSPolicy(opts.CORSOrigins),
		wsOrigins:  originHosts(opts.CORSOrigins),
	}

	if opts.Metrics {
		srv.metrics = newMetrics(opts.RefreshCalls)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/info", srv.handleInfo)
	mux.HandleFunc("/api/presence", srv.handlePresence)
	mux.HandleFunc("/api/nowplaying", srv.handleNowPlaying)
	mux.HandleFunc("/api/spotify/auth", srv.handleSpotifyAuth)
	mux.HandleFunc("/api/spotify/callback", srv.handleSpotifyCallback)
	mux.HandleFunc("/stream", srv.handleStream)
	mux.HandleFunc("/ws", srv.handleWS)
	if srv.metrics != nil {
		mux.Handle("/metrics", srv.metrics.Handler())
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// middleware layers CORS, rate limiting, the access recorder, and metrics
// around the mux.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if handled, status := s.cors.handlePreflight(w, r); handled {
			s.metrics.ObserveRequest(r.URL.Path, r.Method, status, time.Since(start))
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			s.metrics.ObserveRequest(r.URL.Path, r.Method, http.StatusForbidden, time.Since(start))
			return
		}

		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			s.metrics.ObserveRequest(r.URL.Path, r.Method, http.StatusTooManyRequests, time.Since(start))
			return
		}

		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)

		dur := time.Since(start)
		s.metrics.ObserveRequest(r.URL.Path, r.Method, rec.Status(), dur)
		if s.opts.AccessLog {
			log.Printf("http %s %s %d %dB %s ip=%s", r.Method, r.URL.Path, rec.Status(), rec.Bytes(), dur, remoteIP(r))
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handlePresence always answers 200; the aggregator degrades to an offline
// snapshot internally, so the frontend never sees a server error here.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	snapshot := s.snapshots.Snapshot(r.Context())
	writeNoStoreJSON(w, http.StatusOK, snapshot)
}

// handleNowPlaying keeps the historical 500-on-failure contract, unlike the
// presence endpoint. The body carries no upstream detail; that goes to the
// log only.
func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	playing, err := s.player.CurrentlyPlaying(r.Context())
	if err != nil {
		log.Printf("httpapi: now playing: %v", err)
		writeNoStoreJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch currently playing track",
		})
		return
	}
	writeNoStoreJSON(w, http.StatusOK, playing)
}

func (s *Server) handleSpotifyAuth(w http.ResponseWriter, r *http.Request) {
	if s.authorizer == nil {
		writeNoStoreJSON(w, http.StatusInternalServerError, map[string]string{"error": "authorization not configured"})
		return
	}
	http.Redirect(w, r, s.authorizer.AuthorizeURL(), http.StatusFound)
}

// handleSpotifyCallback exchanges the authorization code and returns the
// refresh token to the owner, who stores it in the environment.
func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	if s.authorizer == nil {
		writeNoStoreJSON(w, http.StatusInternalServerError, map[string]string{"error": "authorization not configured"})
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeNoStoreJSON(w, http.StatusBadRequest, map[string]string{"error": "no code provided"})
		return
	}
	pair, err := s.authorizer.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Printf("httpapi: code exchange: %v", err)
		writeNoStoreJSON(w, http.StatusBadGateway, map[string]string{"error": "token exchange failed"})
		return
	}
	writeNoStoreJSON(w, http.StatusOK, map[string]any{
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	clientCh, last, ok := s.subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(clientCh)

	s.metrics.IncSSEClients(1)
	defer s.metrics.IncSSEClients(-1)

	fmt.Fprintf(w, ":ok\n\n")
	flusher.Flush()

	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			fmt.Fprintf(w, "event: presence\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ":ping\n\n")
			flusher.Flush()
		case snapshot, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: presence\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(baseWriter(w), r, &websocket.AcceptOptions{
		OriginPatterns: s.wsOrigins,
	})
	if err != nil {
		log.Printf("httpapi: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	clientCh, last, ok := s.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.unsubscribe(clientCh)

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	ctx := r.Context()

	if last != nil {
		if err := wsjson.Write(ctx, conn, last); err != nil {
			return
		}
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case snapshot, ok := <-clientCh:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, snapshot); err != nil {
				return
			}
		}
	}
}

// originHosts converts the configured origins (scheme://host) into the host
// patterns the websocket handshake matches Origin headers against. The
// library compares hosts, not full origins, so the scheme must be stripped.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(origin)
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

func (s *Server) subscribe() (chan core.PresenceSnapshot, *core.PresenceSnapshot, bool) {
	ch := make(chan core.PresenceSnapshot, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}
	s.clients[ch] = struct{}{}
	return ch, s.last, true
}

func (s *Server) unsubscribe(ch chan core.PresenceSnapshot) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// Broadcast fans a snapshot out to every connected stream client. Slow
// clients drop snapshots instead of blocking the poller.
func (s *Server) Broadcast(snapshot core.PresenceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = &snapshot
	s.metrics.IncSnapshotsPublished()

	for ch := range s.clients {
		select {
		case ch <- snapshot:
		default:
			s.metrics.IncBroadcastDrops("stream")
		}
	}
}

func (s *Server) Start() error {
	log.Printf("http api listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeNoStoreJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
