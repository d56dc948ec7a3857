package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"

	logx "kasbon/pkg/logx"
)

const (
	reloadDebounce = 250 * time.Millisecond
	watchedOps     = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
)

// Watch follows the config file until ctx is done, reloading after a quiet
// period of reloadDebounce. The directory is watched so editors that replace
// the file by rename are seen. A broken watcher is recreated with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	log := m.log.With(logx.String("dir", dir))
	retry := &backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
	}
	retry.Reset()

	for ctx.Err() == nil {
		w, err := newDirWatcher(dir)
		if err != nil {
			log.Warn("config watch setup failed", logx.Err(err))
		} else {
			retry.Reset()
			log.Debug("config watcher started", logx.String("file", filepath.Base(m.path)))
			err = m.follow(ctx, w)
			_ = w.Close()
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("config watcher stopped; restarting", logx.Err(err))
		}

		select {
		case <-ctx.Done():
		case <-time.After(retry.NextBackOff()):
		}
	}
	return nil
}

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// follow pumps watcher events until ctx is done or the watcher breaks, which
// it reports as a non-nil error.
func (m *ConfigManager) follow(ctx context.Context, w *fsnotify.Watcher) error {
	file := filepath.Base(m.path)
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if ev.Op&watchedOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok, errors.Is(err, fsnotify.ErrClosed):
				return errors.New("watcher closed")
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				debounce.Reset(reloadDebounce)
			case err != nil:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
