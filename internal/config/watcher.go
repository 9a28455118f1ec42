package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDelay coalesces the burst of events a single editor save produces.
const reloadDelay = 100 * time.Millisecond

// OnReload is called after a successful hot-reload with the previous and
// the freshly loaded config.
type OnReload func(old, new *Config)

// Watcher reloads the config file whenever it changes on disk.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string

	mu        sync.RWMutex
	callbacks []OnReload

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path. The parent directory is watched so that
// write-and-rename saves are seen as well.
func Watch(path string) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		fsw:     fsw,
		path:    abs,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn OnReload) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Close stops the watcher and waits for its goroutine. Repeated calls are
// no-ops.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
		<-w.stopped
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.stopped)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	old := Get()
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
		return
	}
	log.Info().Str("path", w.path).Strs("sections", Changed(old, cfg)).Msg("config reloaded")

	w.mu.RLock()
	cbs := append([]OnReload(nil), w.callbacks...)
	w.mu.RUnlock()
	for _, cb := range cbs {
		notify(cb, old, cfg)
	}
}

func notify(cb OnReload, old, cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("config reload callback panicked")
		}
	}()
	cb(old, cfg)
}

// Changed returns the TOML names of the top-level sections that differ
// between old and new, in declaration order.
func Changed(old, new *Config) []string {
	if old == nil || new == nil {
		return nil
	}
	ov, nv := reflect.ValueOf(*old), reflect.ValueOf(*new)
	t := ov.Type()
	var out []string
	for i := range t.NumField() {
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			out = append(out, t.Field(i).Tag.Get("toml"))
		}
	}
	return out
}
