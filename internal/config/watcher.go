package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 100 * time.Millisecond

// Watcher monitors a config file and calls a callback when its content
// changes to a new valid configuration. It watches the file's directory with
// fsnotify so that editors which save by renaming are noticed, and falls back
// to polling when fsnotify is unavailable.
type Watcher struct {
	path     string
	interval time.Duration
	polling  bool
	onChange func(old, new *Config)
	log      *slog.Logger

	mu       sync.Mutex
	current  *Config
	lastHash [sha256.Size]byte

	fs       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPolling disables fsnotify and polls the file instead.
func WithPolling() WatcherOption {
	return func(w *Watcher) { w.polling = true }
}

// WithWatcherLogger sets the logger. Default: slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts watching in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = sha256.Sum256(data)

	if !w.polling {
		if err := w.startNotify(); err != nil {
			w.log.Warn("config watcher: fsnotify unavailable, polling instead", "err", err, "interval", w.interval)
			w.polling = true
		}
	}

	w.wg.Add(1)
	if w.polling {
		go w.poll()
	} else {
		go w.watch()
	}
	return w, nil
}

func (w *Watcher) startNotify() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(filepath.Dir(w.path)); err != nil {
		fs.Close()
		return err
	}
	w.fs = fs
	return nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool { return w.polling }

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fs != nil {
			w.fs.Close()
		}
	})
	w.wg.Wait()
}

// watch reacts to fsnotify events for the config file. Events are debounced
// because editors often truncate and write in separate steps.
func (w *Watcher) watch() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.check()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher: fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) poll() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the config file and, if its content changed and is valid,
// swaps it in and calls onChange. Invalid content keeps the previous config.
func (w *Watcher) check() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn("config watcher: cannot read file", "path", w.path, "err", err)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Mid-save truncation; the next event or tick sees the content.
		return
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	w.log.Info("config watcher: configuration reloaded", "path", w.path)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}
