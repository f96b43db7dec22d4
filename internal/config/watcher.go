package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gatekeeper/internal/models"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes the
// validated result to onChange. Invalid files are logged and skipped. The
// parent directory is watched so atomic renames are seen. onChange runs on
// the watching goroutine, so calls never overlap. Watch blocks until ctx is
// cancelled.
func Watch(ctx context.Context, path string, onChange func(*models.Config)) error {
	return watch(ctx, path, DefaultDebounce, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, onChange func(*models.Config)) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger := slog.Default().With("component", "config_watcher")
	logger.Info("Config watcher started", "path", abs)

	// The debounce timer only signals; the reload itself runs in the loop.
	pending := make(chan struct{}, 1)
	notify := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			logger.Debug("Config file event", "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, notify)

		case <-pending:
			cfg, err := Load(abs)
			if err != nil {
				logger.Error("Config reload failed; keeping current settings", "error", err)
				continue
			}
			logger.Info("Config reloaded", "path", abs)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("Config watcher error", "error", err)
		}
	}
}

// ApplyLive applies the settings of next that can change without a restart
// and logs the ones that cannot. Only the log level is live.
func ApplyLive(current, next *models.Config, setLevel func(string) error) {
	if next.Logging.Level != current.Logging.Level {
		if err := setLevel(next.Logging.Level); err != nil {
			slog.Warn("Failed to apply log level", "level", next.Logging.Level, "error", err)
		} else {
			slog.Info("Log level changed", "from", current.Logging.Level, "to", next.Logging.Level)
			current.Logging.Level = next.Logging.Level
		}
	}
	if next.Limiter != current.Limiter {
		slog.Warn("Limiter settings changed; restart to apply")
	}
	if next.Janitor != current.Janitor {
		slog.Warn("Janitor settings changed; restart to apply")
	}
}
