package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long Watch waits after the last event before reloading, so a
// save that arrives as several writes produces one reload.
const settle = 100 * time.Millisecond

// Watch reloads the agent config whenever path changes and passes it to
// onChange. It watches the parent directory so saves that replace the file
// are seen. A file that fails to load, or loads to the config already in
// effect, does not reach onChange. Watch runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	// A file that does not load yet leaves current nil, so the first valid
	// save is applied.
	current, _ := Load(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path)

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(settle)

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			if current != nil && reflect.DeepEqual(cfg, current) {
				slog.Debug("config: file changed but settings did not", "path", path)
				continue
			}
			current = cfg
			slog.Info("config: reloaded", "path", path,
				"sources", len(cfg.Agent.Sources), "interval", cfg.Agent.Interval)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
