// Package spotify holds the OAuth token cache and the currently-playing
// client for the Spotify Web API.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var accountsBaseURL = "https://accounts.spotify.com"

const (
	defaultRefreshTimeout = 15 * time.Second
	// Tokens are treated as expired a minute early so a token handed out
	// here never expires mid-flight on the upstream call.
	expiryMargin = time.Minute
)

// ErrCredentialRefresh marks failures of the refresh-token exchange. The
// cached state is left untouched when it is returned.
var ErrCredentialRefresh = errors.New("spotify: credential refresh failed")

// TokenSource owns the process-wide access token. Construct one at startup
// and inject it; Token refreshes on demand behind the mutex, so concurrent
// expired-token callers share a single exchange instead of racing.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTP         *http.Client

	mu               sync.Mutex
	refreshToken     string
	refreshTokenFile string
	accessToken      string
	expiresAt        time.Time
	refreshCalls     int64
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func NewTokenSource(clientID, clientSecret, refreshToken, refreshTokenFile string) *TokenSource {
	return &TokenSource{
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		refreshToken:     strings.TrimSpace(refreshToken),
		refreshTokenFile: strings.TrimSpace(refreshTokenFile),
	}
}

// Token returns the cached access token while it is still valid, refreshing
// it first when empty or expired. The mutex is held across the exchange on
// purpose: the second concurrent caller blocks and then observes the first
// caller's token instead of issuing its own refresh.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	return s.refreshLocked(ctx)
}

// ForceRefresh discards the cached token and performs an exchange now.
func (s *TokenSource) ForceRefresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// SetRefreshToken adopts an externally rotated refresh token and invalidates
// the cached access token so the next caller exchanges the new credential.
func (s *TokenSource) SetRefreshToken(token string) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return
	}
	s.mu.Lock()
	if trimmed != s.refreshToken {
		s.refreshToken = trimmed
		s.accessToken = ""
		s.expiresAt = time.Time{}
	}
	s.mu.Unlock()
}

// RefreshCalls reports how many exchanges have been performed. Exposed for
// the admin endpoint and tests.
func (s *TokenSource) RefreshCalls() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *TokenSource) refreshLocked(ctx context.Context) (string, error) {
	reqCtx := ctx
	cancel := func() {}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		reqCtx, cancel = context.WithTimeout(ctx, defaultRefreshTimeout)
	}
	defer cancel()

	refresh := s.refreshToken
	if refresh == "" && s.refreshTokenFile != "" {
		data, err := os.ReadFile(s.refreshTokenFile)
		if err != nil {
			return "", fmt.Errorf("%w: read refresh token: %v", ErrCredentialRefresh, err)
		}
		refresh = strings.TrimSpace(string(data))
		s.refreshToken = refresh
	}

	clientID := strings.TrimSpace(s.ClientID)
	clientSecret := strings.TrimSpace(s.ClientSecret)
	if clientID == "" || clientSecret == "" || refresh == "" {
		return "", fmt.Errorf("%w: client credentials and refresh token are required", ErrCredentialRefresh)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)

	endpoint := strings.TrimSuffix(accountsBaseURL, "/") + "/api/token"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrCredentialRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(clientID, clientSecret))

	s.refreshCalls++

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialRefresh, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrCredentialRefresh, err)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrCredentialRefresh, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(parsed.ErrorDesc)
		if msg == "" {
			msg = strings.TrimSpace(parsed.Error)
		}
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrCredentialRefresh, msg)
	}

	token := strings.TrimSpace(parsed.AccessToken)
	if token == "" {
		return "", fmt.Errorf("%w: exchange returned empty token", ErrCredentialRefresh)
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	if parsed.ExpiresIn <= 0 {
		expiresIn = time.Hour
	}

	s.accessToken = token
	s.expiresAt = time.Now().Add(expiresIn - expiryMargin)

	// Spotify may rotate the refresh token; adopt it and persist when a
	// token file is configured so a restart keeps the working credential.
	if rotated := strings.TrimSpace(parsed.RefreshToken); rotated != "" && rotated != s.refreshToken {
		s.refreshToken = rotated
		if s.refreshTokenFile != "" {
			if err := atomicWrite(s.refreshTokenFile, []byte(rotated+"\n"), 0o600); err != nil {
				log.Printf("spotify: persist rotated refresh token: %v", err)
			}
		}
	}

	log.Printf("spotify: refreshed token; expires at %s", s.expiresAt.UTC().Format(time.RFC3339))
	return token, nil
}

func (s *TokenSource) httpClient() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return http.DefaultClient
}

func basicAuth(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}

func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Chmod(path, mode)
}
