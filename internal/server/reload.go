package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader watches the configuration, lexicon and contract files and
// triggers a hot reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	logger  *zap.Logger
	delay   time.Duration
	paths   map[string]bool
}

// NewReloader creates a file watcher for the server's watch paths. Paths
// that do not exist yet are skipped.
func NewReloader(server *Server) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	r := &Reloader{
		watcher: watcher,
		server:  server,
		logger:  server.logger.Named("reload"),
		delay:   500 * time.Millisecond,
		paths:   make(map[string]bool),
	}
	if err := r.watchAll(); err != nil {
		watcher.Close()
		return nil, err
	}
	return r, nil
}

// Paths returns the watched paths.
func (r *Reloader) Paths() []string {
	out := make([]string, 0, len(r.paths))
	for p := range r.paths {
		out = append(out, p)
	}
	return out
}

func (r *Reloader) watchAll() error {
	for _, p := range r.server.WatchPaths() {
		if p == "" || r.paths[p] {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := r.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
		r.paths[p] = true
	}
	return nil
}

// Run watches for file changes and reloads the engine. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait after the last write before reloading.
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.delay, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			}

		case <-fire:
			if err := r.server.Reload(); err != nil {
				r.logger.Error("hot reload failed, keeping previous engine", zap.Error(err))
				continue
			}
			// A reloaded config may name new lexicon or contract files.
			if err := r.watchAll(); err != nil {
				r.logger.Warn("file watcher", zap.Error(err))
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
