package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Mutable is the subset of the config that may change while the agent runs.
type Mutable struct {
	LogLevel         string
	HeartbeatSeconds int
}

// Watch observes the config file and invokes apply with the mutable subset
// whenever the file changes and still parses. Credential and listener
// changes require a restart and are ignored here. Blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(Mutable)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	// Editors replace files with rename+create; debounce bursts.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(250 * time.Millisecond)
				// re-add after rename so we keep following the path
				_ = watcher.Add(path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config watcher error: %v", err)
		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.Printf("config reload failed, keeping previous config: %v", err)
				continue
			}
			log.Printf("config reloaded from %s", path)
			apply(Mutable{LogLevel: cfg.LogLevel, HeartbeatSeconds: cfg.HeartbeatSeconds})
		}
	}
}
