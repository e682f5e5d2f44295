// Package httpadmin exposes operator-only endpoints on a separate listener.
package httpadmin

import (
	"context"
	"encoding/json"
	"net/http"
)

// TokenRefresher forces a credential refresh regardless of expiry.
type TokenRefresher interface {
	ForceRefresh(ctx context.Context) (string, error)
	RefreshCalls() int64
}

type Server struct {
	tokens TokenRefresher
	config func() []byte
}

// New builds the admin server. config returns the redacted configuration
// document; it must never include secrets.
func New(tokens TokenRefresher, config func() []byte) *Server {
	return &Server{tokens: tokens, config: config}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/spotify/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.tokens.ForceRefresh(r.Context()); err != nil {
			http.Error(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":            true,
			"refresh_calls": s.tokens.RefreshCalls(),
		})
	})
	mux.HandleFunc("/admin/config", func(w http.ResponseWriter, r *http.Request) {
		if s.config == nil {
			http.Error(w, "config unavailable", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(s.config())
	})
}
