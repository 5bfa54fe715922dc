package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/CyberPuffer/HelloCamera/config"
	"github.com/CyberPuffer/HelloCamera/internal/metrics"
	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"
)

// reloadDelay coalesces the burst of events one editor save produces
const reloadDelay = 250 * time.Millisecond

// runWatched runs the relay and restarts it with the reloaded configuration
// whenever the file at path changes. An invalid file keeps the running
// relay untouched.
func runWatched(ctx context.Context, path string, fs *flag.FlagSet, cfg *config.Config,
	level *slog.LevelVar, debug bool, collector *metrics.Collector, logger *slog.Logger) error {
	changes, err := watchFile(ctx, path, logger)
	if err != nil {
		return err
	}

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(cfg *config.Config) {
			done <- newApp(cfg, collector, logger).run(runCtx)
		}(cfg)

		next, err := awaitReload(path, fs, changes, done, logger)
		if next == nil {
			cancel()
			return err
		}

		logger.Info("watch: config changed, restarting relay", "path", path)
		cancel()
		<-done

		cfg = next
		if !debug {
			level.Set(cfg.LogLevel())
		}
	}
}

// awaitReload blocks until the file changes into a valid configuration, or
// the running relay returns. A nil config carries the relay's result.
func awaitReload(path string, fs *flag.FlagSet, changes <-chan struct{}, done <-chan error,
	logger *slog.Logger) (*config.Config, error) {
	for {
		select {
		case err := <-done:
			return nil, err
		case <-changes:
		}
		next, err := loadConfig(path, fs)
		if err != nil {
			logger.Error("watch: reload rejected, keeping current config", "path", path, "error", err)
			continue
		}
		return next, nil
	}
}

// watchFile signals on the returned channel after path is written,
// created or renamed over. The parent directory is watched so atomic
// replace-by-rename saves are seen.
func watchFile(ctx context.Context, path string, logger *slog.Logger) (<-chan struct{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch: %w", err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(reloadDelay)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watch: watcher error", "error", err)
			case <-debounce:
				debounce = nil
				select {
				case changes <- struct{}{}:
				default:
				}
			}
		}
	}()

	logger.Info("watch: watching config", "path", abs)
	return changes, nil
}
