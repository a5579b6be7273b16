package auth

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the registry's tokens file whenever it changes, until ctx
// is cancelled. The parent directory is watched so that atomic
// rename-over-writes are picked up. onReload, if non-nil, is called after
// each successful reload.
func Watch(ctx context.Context, r *Registry, logger *slog.Logger, onReload func()) error {
	if r.Path() == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(r.Path())
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}
	logger.Info("tokens watcher: started", slog.String("path", target))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerC = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("tokens watcher: stopped")
			return nil

		case <-timerC:
			if err := r.Reload(); err != nil {
				logger.Warn("tokens watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("tokens watcher: reloaded", slog.Int("tokens", r.Len()))
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("tokens watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
