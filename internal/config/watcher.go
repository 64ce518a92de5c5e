package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// Reload is one accepted change of the config file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file and reports effective changes. A change is
// accepted only when the new content parses, validates, and differs from the
// current config in at least one field [Diff] tracks. Rejected content is
// remembered by digest so a broken file is reported once, not on every poll.
type Watcher struct {
	path     string
	interval time.Duration
	lookup   func(string) (string, bool)

	mu       sync.Mutex
	current  *Config
	digest   [sha256.Size]byte
	rejected [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval used by [Watcher.Run].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLookupEnv replaces [os.LookupEnv] as the source of environment
// overrides applied to every loaded config.
func WithLookupEnv(lookup func(string) (string, bool)) WatcherOption {
	return func(w *Watcher) {
		if lookup != nil {
			w.lookup = lookup
		}
	}
}

// NewWatcher loads path once and returns a Watcher holding the result. It does
// not start polling; call [Watcher.Run].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(w)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := parse(data, w.lookup)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current = cfg
	w.digest = sha256.Sum256(data)
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Check reads the file once. It reports ok when an effective change was
// accepted; err is non-nil when the file could not be read or the new
// content was rejected.
func (w *Watcher) Check() (r Reload, ok bool, err error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return Reload{}, false, fmt.Errorf("config: watch %q: %w", w.path, err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if sum == w.digest || sum == w.rejected {
		return Reload{}, false, nil
	}

	cfg, err := parse(data, w.lookup)
	if err != nil {
		w.rejected = sum
		return Reload{}, false, fmt.Errorf("config: watch %q: %w", w.path, err)
	}

	r = Reload{Old: w.current, New: cfg, Diff: Diff(w.current, cfg)}
	w.digest = sum
	w.current = cfg
	return r, !r.Diff.Empty(), nil
}

// Run polls until ctx is done and calls onReload for every accepted change.
// onReload runs on the polling goroutine. Run returns ctx.Err().
func (w *Watcher) Run(ctx context.Context, onReload func(Reload)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		r, ok, err := w.Check()
		switch {
		case err != nil:
			slog.Warn("config reload rejected; keeping current config", "path", w.path, "err", err)
		case ok:
			slog.Info("config reloaded", "path", w.path)
			if onReload != nil {
				onReload(r)
			}
		}
	}
}
