/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the small daemon-tunables file (max.concurrent.requests and
// friends, spec §6) and, optionally, watches it for edits. This is deliberately not
// the resource-catalog/topology YAML parser, which spec §1 keeps out of scope.
package config

import (
	"os"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	apiconfig "github.com/tunedctl/cocotabled/pkg/apis/config"
)

// Load reads a DaemonSettings document from path, filling in spec-tabulated
// defaults for any field the file omits.
func Load(path string) (apiconfig.DaemonSettings, error) {
	settings := apiconfig.DefaultSettings()
	raw, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// ChangeHandler is invoked with the newly loaded settings whenever the watched
// file's content changes. Mirrors the teacher's EnqueueRequestForConfigMap shape:
// a SyncCacheIfChanged-style diff guard followed by a single notify callback.
type ChangeHandler func(apiconfig.DaemonSettings)

// Watcher reloads a settings file on write and notifies a handler only when the
// parsed value actually differs from the last-seen one.
type Watcher struct {
	path    string
	handler ChangeHandler

	mu   sync.Mutex
	last apiconfig.DaemonSettings

	fsw *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher constructs a Watcher over path, performing an initial load so
// Current() is valid immediately.
func NewWatcher(path string, handler ChangeHandler) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		handler: handler,
		last:    initial,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded settings.
func (w *Watcher) Current() apiconfig.DaemonSettings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Run blocks, reloading the file on every write/create event until Stop is called.
func (w *Watcher) Run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			klog.ErrorS(err, "config watcher error", "path", w.path)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		klog.ErrorS(err, "failed to reload daemon settings", "path", w.path)
		return
	}
	w.mu.Lock()
	changed := !reflect.DeepEqual(next, w.last)
	if changed {
		w.last = next
	}
	w.mu.Unlock()
	if changed && w.handler != nil {
		w.handler(next)
	}
}

// Stop closes the underlying filesystem watcher and unblocks Run.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
