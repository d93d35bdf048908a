package mcp

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher reloads the server list when its file changes and reconciles
// the Manager: servers disabled or removed on disk have their connections
// closed, new servers become available for connect.
type ConfigWatcher struct {
	path    string
	manager *Manager
	watcher *fsnotify.Watcher
	log     *zap.Logger
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// WatchConfig starts watching the server config file at path.
func WatchConfig(path string, manager *Manager, log *zap.Logger) (*ConfigWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		path:    path,
		manager: manager,
		watcher: fsw,
		log:     log.Named("mcp.watcher"),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *ConfigWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *ConfigWatcher) reload() {
	configs, err := LoadServers(w.path)
	if err != nil {
		// A half-written or invalid file keeps the last good registry.
		w.log.Warn("ignoring invalid server config", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.manager.Reconcile(configs); err != nil {
		w.log.Warn("reconcile failed", zap.Error(err))
		return
	}
	w.log.Info("server registry reloaded", zap.Int("servers", len(configs)))
}

// Close stops the watcher. Idempotent.
func (w *ConfigWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}
