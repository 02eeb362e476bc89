package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/telemetry"
)

// ReloadDelay is how long the file must be quiet before it is reloaded.
const ReloadDelay = 250 * time.Millisecond

// Watcher keeps a configuration file loaded and pushes its defaults to
// registered receivers.
type Watcher struct {
	path      string
	logger    zerolog.Logger
	telemetry *telemetry.Telemetry
	delay     time.Duration

	mu        sync.Mutex
	current   *Config
	receivers []engine.DefaultsReceiver
	listeners []func(*Config)
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, logger zerolog.Logger, tel *telemetry.Telemetry) *Watcher {
	return &Watcher{
		path:      filepath.Clean(path),
		logger:    logger.With().Str("component", "config").Str("path", path).Logger(),
		telemetry: tel,
		delay:     ReloadDelay,
	}
}

// Register adds a receiver. It is immediately handed the current defaults
// when a configuration has been loaded.
func (w *Watcher) Register(r engine.DefaultsReceiver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receivers = append(w.receivers, r)
	if w.current != nil {
		r.SetDefaults(w.current.EngineDefaults())
	}
}

// OnReload adds fn to the functions called after each push. fn receives nil
// when the file was removed.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Current returns the last successfully loaded configuration, or nil.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload loads the file and pushes the result. A missing file pushes nil.
// When the file fails to load the previous configuration stays in effect
// and the error is returned.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	removed := errors.Is(err, fs.ErrNotExist)
	if err != nil && !removed {
		w.telemetry.MetricsOrNil().RecordConfigReload(telemetry.StatusFailure)
		w.publish(telemetry.EventLevelError, fmt.Sprintf("configuration rejected: %v", err), false)
		return err
	}

	w.mu.Lock()
	w.current = cfg
	var defaults *engine.Defaults
	if cfg != nil {
		defaults = cfg.EngineDefaults()
	}
	for _, r := range w.receivers {
		r.SetDefaults(defaults)
	}
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}

	w.telemetry.MetricsOrNil().RecordConfigReload(telemetry.StatusSuccess)
	if removed {
		w.logger.Info().Msg("Configuration removed, built-in defaults restored")
		w.publish(telemetry.EventLevelWarning, "configuration removed", true)
	} else {
		w.logger.Info().Msg("Configuration loaded")
		w.publish(telemetry.EventLevelInfo, "configuration loaded", false)
	}
	return nil
}

func (w *Watcher) publish(level, message string, removed bool) {
	_ = w.telemetry.EventsOrNil().Publish(telemetry.Event{
		Type:    telemetry.EventTypeConfigReloaded,
		Source:  "config",
		Level:   level,
		Message: message,
		Data:    map[string]interface{}{"path": w.path, "removed": removed},
	})
}

// Watch performs an initial Reload and then follows changes to the file
// until ctx is cancelled. The containing directory is watched so the file
// may be created, replaced or removed.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.Reload(); err != nil {
		w.logger.Error().Err(err).Msg("Initial configuration load failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	go w.processEvents(ctx, watcher)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("op", event.Op.String()).Msg("Configuration file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.delay, func() {
				if ctx.Err() != nil {
					return
				}
				if err := w.Reload(); err != nil {
					w.logger.Error().Err(err).Msg("Keeping previous configuration")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
