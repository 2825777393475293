package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/substrate/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 250 * time.Millisecond

// Watch reloads dir into h whenever a definition file changes, until ctx is
// cancelled. Rejected definitions are logged; the previous registry stays
// in place only if the directory itself cannot be read.
func Watch(ctx context.Context, dir string, h *Holder, log *logging.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workflows directory %s: %w", dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting workflow watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isDefinitionFile(filepath.Base(ev.Name)) || ev.Op == fsnotify.Chmod {
					continue
				}
				log.Debug("workflow change: %s", ev)
				if timer == nil {
					timer = time.NewTimer(reloadDelay)
				} else {
					timer.Reset(reloadDelay)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("workflow watcher: %v", err)
			case <-fire:
				fire = nil
				Reload(dir, h, log)
			}
		}
	}()
	return nil
}

// Reload rebuilds the registry from dir and swaps it into h.
func Reload(dir string, h *Holder, log *logging.Logger) {
	reg, rejected, err := LoadDir(dir)
	if err != nil {
		log.Error("reloading workflows: %v", err)
		return
	}
	for _, e := range rejected {
		log.Warn("rejected workflow definition: %v", e)
	}
	h.Swap(reg)
	log.Info("loaded %d workflows", reg.Len())
}
