package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/tasktune/fatigue/pkg/logger"
)

// Watch monitors path and calls onChange with the reloaded Config each time
// the file is written. It runs until ctx is cancelled.
//
// A reload that fails is logged and the previous config stays active;
// onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: watch: %w", ErrLoadConfig, err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}

	log := logger.Named("config")
	log.Info(ctx, "watching for changes", logger.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically show up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(ctx, path)
			if err != nil {
				log.Error(ctx, "reload failed, keeping previous config",
					logger.String("path", path), logger.Error(err))
				continue
			}

			log.Info(ctx, "reloaded", logger.String("path", path))
			onChange(cfg)

			// The inode may have been replaced.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "watcher error", logger.Error(err))
		}
	}
}

// ApplyLogLevel is an onChange hook that pushes log_level to the global logger.
func ApplyLogLevel(ctx context.Context) func(*Config) {
	return func(cfg *Config) {
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			logger.Get().Warn(ctx, "ignoring log level", logger.String("level", cfg.LogLevel), logger.Error(err))
			return
		}
		logger.Get().Info(ctx, "log level applied", logger.String("level", cfg.LogLevel))
	}
}
