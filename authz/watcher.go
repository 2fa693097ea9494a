// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"archimedes.dev/archimedes/errors"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the engine's policy bundle when the file changes on disk.
// It watches the bundle's parent directory, so atomic replace-by-rename
// (the usual deploy pattern) is observed as a create event.
type Watcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to coalesce bursts of file events before
// reloading. Defaults to 500ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for reload outcomes.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher builds a watcher that reloads engine from path on change.
// Call Start to begin watching.
func NewWatcher(engine *Engine, path string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.KindPolicyLoad, err, "create bundle watcher")
	}

	w := &Watcher{
		engine:   engine,
		path:     path,
		debounce: defaultDebounce,
		logger:   slog.Default(),
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching. The watch loop runs until Stop is called.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrapf(errors.KindPolicyLoad, err, "watch bundle directory %s", filepath.Dir(w.path))
	}

	go w.loop()

	w.logger.Info("watching policy bundle", "path", w.path)

	return nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	close(w.done)

	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var pending *time.Timer

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Coalesce the burst of events a bundle replacement produces
			// into a single reload.
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("policy bundle watcher error", "error", err)

		case <-w.done:
			if pending != nil {
				pending.Stop()
			}

			return
		}
	}
}

// reload swaps in the new bundle. On failure the engine keeps serving the
// previous policy generation.
func (w *Watcher) reload() {
	if err := w.engine.Reload(context.Background()); err != nil {
		w.logger.Error("policy bundle reload failed, keeping previous policy",
			"path", w.path,
			"error", err,
			"revision", w.engine.Revision(),
		)
	}
}
