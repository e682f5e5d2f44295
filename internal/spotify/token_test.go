package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTokenSource(t *testing.T, handler http.Handler) *TokenSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	original := accountsBaseURL
	accountsBaseURL = srv.URL
	t.Cleanup(func() {
		accountsBaseURL = original
		srv.Close()
	})
	s := NewTokenSource("cid", "secret", "refresh-1", "")
	s.HTTP = srv.Client()
	return s
}

func tokenHandler(calls *atomic.Int64, accessToken string, expiresIn int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
		})
	})
}

func TestTokenValidCacheSkipsRefresh(t *testing.T) {
	calls := &atomic.Int64{}
	s := newTestTokenSource(t, tokenHandler(calls, "tok-1", 3600))

	first, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if first != "tok-1" || calls.Load() != 1 {
		t.Fatalf("unexpected first exchange: token=%q calls=%d", first, calls.Load())
	}

	second, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("second token: %v", err)
	}
	if second != "tok-1" {
		t.Fatalf("expected cached token, got %q", second)
	}
	if calls.Load() != 1 {
		t.Fatalf("cached token must not trigger a refresh, calls=%d", calls.Load())
	}
}

func TestTokenExpiredRefreshesOnce(t *testing.T) {
	calls := &atomic.Int64{}
	s := newTestTokenSource(t, tokenHandler(calls, "tok-2", 3600))

	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	s.mu.Lock()
	s.expiresAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	tok, err := s.Token(context.Background())
	if err != nil {
		t.Fatalf("refresh after expiry: %v", err)
	}
	if tok != "tok-2" {
		t.Fatalf("unexpected token %q", tok)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly one extra exchange, calls=%d", calls.Load())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !time.Now().Before(s.expiresAt) {
		t.Fatalf("expiry not advanced: %s", s.expiresAt)
	}
}

func TestTokenExpiryMargin(t *testing.T) {
	calls := &atomic.Int64{}
	s := newTestTokenSource(t, tokenHandler(calls, "tok", 3600))

	before := time.Now()
	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}

	s.mu.Lock()
	expires := s.expiresAt
	s.mu.Unlock()

	latest := before.Add(time.Hour - expiryMargin + 5*time.Second)
	if expires.After(latest) {
		t.Fatalf("expiry %s not reduced by safety margin", expires)
	}
}

func TestTokenSingleFlight(t *testing.T) {
	calls := &atomic.Int64{}
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	s := newTestTokenSource(t, slow)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Token(context.Background()); err != nil {
				t.Errorf("token: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("concurrent callers must share one exchange, calls=%d", calls.Load())
	}
}

func TestTokenRefreshFailureLeavesStateUnchanged(t *testing.T) {
	s := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))

	_, err := s.Token(context.Background())
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if !errors.Is(err, ErrCredentialRefresh) {
		t.Fatalf("expected ErrCredentialRefresh, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" || !s.expiresAt.IsZero() {
		t.Fatalf("failed refresh must not mutate cache: %+v", s)
	}
}

func TestTokenMissingCredentials(t *testing.T) {
	s := NewTokenSource("", "", "", "")
	if _, err := s.Token(context.Background()); !errors.Is(err, ErrCredentialRefresh) {
		t.Fatalf("expected ErrCredentialRefresh, got %v", err)
	}
}

func TestTokenRotationPersistsRefreshToken(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "refresh")
	if err := os.WriteFile(file, []byte("refresh-old\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotRefresh = r.Form.Get("refresh_token")

		auth := r.Header.Get("Authorization")
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("cid:secret"))
		if auth != want {
			t.Errorf("unexpected auth header %q", auth)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok",
			"refresh_token": "refresh-new",
			"expires_in":    3600,
		})
	}))
	original := accountsBaseURL
	accountsBaseURL = srv.URL
	t.Cleanup(func() {
		accountsBaseURL = original
		srv.Close()
	})

	s := NewTokenSource("cid", "secret", "", file)
	s.HTTP = srv.Client()

	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if gotRefresh != "refresh-old" {
		t.Fatalf("expected file-sourced refresh token, got %q", gotRefresh)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "refresh-new" {
		t.Fatalf("rotated token not persisted, file=%q", data)
	}
}

func TestSetRefreshTokenInvalidatesCache(t *testing.T) {
	calls := &atomic.Int64{}
	s := newTestTokenSource(t, tokenHandler(calls, "tok", 3600))

	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	s.SetRefreshToken("refresh-2")

	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("token after rotation: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("rotated refresh token must force a new exchange, calls=%d", calls.Load())
	}
}
