package httpadmin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeRefresher struct {
	err   error
	calls int64
}

func (f *fakeRefresher) ForceRefresh(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return "tok", nil
}

func (f *fakeRefresher) RefreshCalls() int64 { return f.calls }

func newTestMux(ref *fakeRefresher, config func() []byte) *http.ServeMux {
	mux := http.NewServeMux()
	New(ref, config).Register(mux)
	return mux
}

func TestAdminRefresh(t *testing.T) {
	ref := &fakeRefresher{}
	mux := newTestMux(ref, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/spotify/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ref.calls != 1 {
		t.Fatalf("expected one refresh, got %d", ref.calls)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAdminRefreshMethodNotAllowed(t *testing.T) {
	mux := newTestMux(&fakeRefresher{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/spotify/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAdminRefreshFailure(t *testing.T) {
	mux := newTestMux(&fakeRefresher{err: errors.New("nope")}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/spotify/refresh", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAdminConfig(t *testing.T) {
	mux := newTestMux(&fakeRefresher{}, func() []byte { return []byte(`{"ok":true}`) })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}
