package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const authScopes = "user-read-currently-playing user-read-playback-state"

// Authorizer drives the one-time authorization-code flow the owner uses to
// mint a refresh token.
type Authorizer struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTP         *http.Client
}

// TokenPair is the result of a code exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthorizeURL builds the consent-screen redirect target.
func (a *Authorizer) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", strings.TrimSpace(a.ClientID))
	q.Set("response_type", "code")
	q.Set("redirect_uri", a.RedirectURI)
	q.Set("scope", authScopes)
	q.Set("show_dialog", "true")
	return strings.TrimSuffix(accountsBaseURL, "/") + "/authorize?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (a *Authorizer) ExchangeCode(ctx context.Context, code string) (TokenPair, error) {
	if strings.TrimSpace(code) == "" {
		return TokenPair{}, fmt.Errorf("spotify: empty authorization code")
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultRefreshTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", a.RedirectURI)

	endpoint := strings.TrimSuffix(accountsBaseURL, "/") + "/api/token"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, fmt.Errorf("spotify: create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(strings.TrimSpace(a.ClientID), strings.TrimSpace(a.ClientSecret)))

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("spotify: exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return TokenPair{}, fmt.Errorf("spotify: read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return TokenPair{}, fmt.Errorf("spotify: exchange status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("spotify: decode exchange response: %w", err)
	}
	if pair.AccessToken == "" {
		return TokenPair{}, fmt.Errorf("spotify: exchange returned empty token")
	}
	return pair, nil
}
