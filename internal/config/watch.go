package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// DefaultWatchDebounce coalesces the burst of events an editor produces on save
const DefaultWatchDebounce = 100 * time.Millisecond

// WatchFunc receives the freshly loaded configuration, or the error that
// prevented loading it. A broken file never replaces a good configuration
// unless the callback decides so.
type WatchFunc func(cfg Config, err error)

// WatchCleanupFunc stops a watch and waits for its goroutine to exit
type WatchCleanupFunc func() error

// Watch calls fn each time the file at path is written, created or replaced.
// The parent directory is watched rather than the file so that atomic
// rename-over saves are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, fn WatchFunc) (WatchCleanupFunc, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	dir := filepath.Dir(absPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})

	var mu sync.Mutex
	var debouncer *time.Timer

	reload := func() {
		if sctx.IsStopping() {
			return
		}
		cfg, err := Load(absPath)
		fn(cfg, err)
	}

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			mu.Lock()
			if debouncer != nil {
				debouncer.Stop()
			}
			mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if debouncer != nil {
					debouncer.Stop()
				}
				debouncer = time.AfterFunc(debounce, reload)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil && !sctx.IsStopping() {
					fn(Config{}, fmt.Errorf("watching %s: %w", absPath, err))
				}
			}
		}
		return nil
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	return cleanup, nil
}
