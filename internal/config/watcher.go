package config

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the config file on change and hands the fresh copy to a
// callback. Used for hot price updates; structural fields are ignored by
// the callers until restart.
type Watcher struct {
	path     string
	onReload func(*Config)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, onReload func(*Config)) *Watcher {
	return &Watcher{path: path, onReload: onReload}
}

// Start runs the watch loops until ctx is done. fsnotify is the fast path;
// a slow 60s poll runs alongside as a safety net for editors and mounts
// that replace the file without emitting events.
func (w *Watcher) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Config Watcher: fsnotify unavailable (%v), polling only", err)
	} else if err := watcher.Add(w.path); err != nil {
		log.Printf("Config Watcher: cannot watch %s (%v), polling only", w.path, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Small debounce: editors often write twice.
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("Config Watcher: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("Config Watcher: reload failed, keeping current config: %v", err)
		return
	}
	log.Printf("Config Watcher: reloaded %s", w.path)
	w.onReload(cfg)
}

// reloadIfChanged checks mtime first so the poll loop stays quiet when
// nothing changed.
func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMtime)
	if changed {
		w.lastMtime = info.ModTime()
	}
	w.mu.Unlock()

	if changed {
		w.reload()
	}
}
