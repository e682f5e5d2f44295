package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	original := apiBaseURL
	apiBaseURL = srv.URL
	t.Cleanup(func() {
		apiBaseURL = original
		srv.Close()
	})
	c := New("bot-token", "111", "222")
	c.HTTP = srv.Client()
	return c
}

func TestFetchUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/111", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bot bot-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.URL.Query().Get("with_profile") != "true" {
			t.Errorf("expected with_profile=true, got %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"username":     "hakan",
			"global_name":  "Hakan",
			"avatar":       "abc",
			"public_flags": 64,
			"theme_colors": []int{1, 2},
		})
	})

	c := newTestClient(t, mux)
	user, err := c.FetchUser(context.Background())
	if err != nil {
		t.Fatalf("fetch user: %v", err)
	}
	if user.Username != "hakan" || user.GlobalName != "Hakan" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PublicFlags != 64 {
		t.Fatalf("unexpected flags: %d", user.PublicFlags)
	}
}

func TestFetchUserNon2xx(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	if _, err := c.FetchUser(context.Background()); err == nil {
		t.Fatalf("expected error for 401 response")
	}
}

func TestFetchGuildMember(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/222/members/111", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"premium_since": "2024-01-02T03:04:05Z",
		})
	})

	c := newTestClient(t, mux)
	member, err := c.FetchGuildMember(context.Background())
	if err != nil {
		t.Fatalf("fetch member: %v", err)
	}
	if member.PremiumSince != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected premium_since: %q", member.PremiumSince)
	}
}

func TestCDNURLs(t *testing.T) {
	c := New("tok", "111", "222")

	avatar := c.AvatarURL(User{Avatar: "abc"})
	if !strings.Contains(avatar, "/avatars/111/abc.png") || !strings.Contains(avatar, "size=256") {
		t.Fatalf("unexpected avatar url: %q", avatar)
	}
	if got := c.AvatarURL(User{}); got != "" {
		t.Fatalf("expected empty avatar url, got %q", got)
	}

	banner := c.BannerURL(User{Banner: "bn"})
	if !strings.Contains(banner, "/banners/111/bn.png") || !strings.Contains(banner, "size=600") {
		t.Fatalf("unexpected banner url: %q", banner)
	}
}

func TestDecorationURLPrefersUser(t *testing.T) {
	user := User{AvatarDecorationData: &AvatarDecoration{Asset: "from-user"}}
	member := GuildMember{AvatarDecorationData: &AvatarDecoration{Asset: "from-member"}}

	if got := DecorationURL(user, member); !strings.Contains(got, "from-user") {
		t.Fatalf("expected user decoration, got %q", got)
	}
	if got := DecorationURL(User{}, member); !strings.Contains(got, "from-member") {
		t.Fatalf("expected member decoration fallback, got %q", got)
	}
	if got := DecorationURL(User{}, GuildMember{}); got != "" {
		t.Fatalf("expected empty decoration url, got %q", got)
	}
}
