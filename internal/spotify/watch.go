package spotify

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchRefreshTokenFile reloads the refresh token whenever the file changes,
// so external rotation (another tool re-authorizing) is picked up without a
// restart. Events are debounced because editors and atomic writers fire
// several per save.
func (s *TokenSource) WatchRefreshTokenFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				data, err := os.ReadFile(path)
				if err != nil {
					slog.Error("refresh token reload failed", "path", path, "err", err)
					continue
				}
				s.SetRefreshToken(string(data))
				slog.Info("refresh token reloaded", "path", path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("watch error", "err", err)
			}
		}
	}()
	return nil
}
