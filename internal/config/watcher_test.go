package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/leadscore/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
provider:
  name: openai
  api_key: sk-test
`

const watcherUpdatedYAML = `
server:
  log_level: debug
provider:
  name: openai
  api_key: sk-test
agent:
  max_iterations: 4
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// noEnv is a lookup that finds no environment variables.
func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// newWatcher writes content to a fresh file and watches it.
func newWatcher(t *testing.T, content string, opts ...config.WatcherOption) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	w, err := config.NewWatcher(path, append([]config.WatcherOption{config.WithLookupEnv(noEnv)}, opts...)...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestNewWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := newWatcher(t, watcherValidYAML)

	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("max_iterations = %d, want default 8", cfg.Agent.MaxIterations)
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, config.WithLookupEnv(noEnv)); err == nil {
		t.Error("invalid file: expected error")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		next        string
		wantOK      bool
		wantErr     bool
		wantLevel   config.LogLevel
		wantRestart []string
	}{
		{
			name:        "log level and agent change",
			next:        watcherUpdatedYAML,
			wantOK:      true,
			wantLevel:   config.LogDebug,
			wantRestart: []string{"agent"},
		},
		{
			name:      "identical content",
			next:      watcherValidYAML,
			wantLevel: config.LogInfo,
		},
		{
			name:      "comment only edit",
			next:      watcherValidYAML + "# tuned by ops\n",
			wantLevel: config.LogInfo,
		},
		{
			name:      "invalid content keeps current",
			next:      watcherInvalidYAML,
			wantErr:   true,
			wantLevel: config.LogInfo,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, path := newWatcher(t, watcherValidYAML)
			writeFile(t, path, tc.next)

			r, ok, err := w.Check()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Check() err = %v, wantErr %v", err, tc.wantErr)
			}
			if ok != tc.wantOK {
				t.Fatalf("Check() ok = %v, want %v", ok, tc.wantOK)
			}
			if ok {
				if r.Old.Server.LogLevel != config.LogInfo || r.New != w.Current() {
					t.Errorf("reload old/new not wired: %+v", r)
				}
				if !r.Diff.LogLevelChanged || r.Diff.NewLogLevel != tc.wantLevel {
					t.Errorf("diff = %+v, want log level %q", r.Diff, tc.wantLevel)
				}
				if len(r.Diff.RestartRequired) != len(tc.wantRestart) || r.Diff.RestartRequired[0] != tc.wantRestart[0] {
					t.Errorf("RestartRequired = %v, want %v", r.Diff.RestartRequired, tc.wantRestart)
				}
			}
			if got := w.Current().Server.LogLevel; got != tc.wantLevel {
				t.Errorf("Current() log_level = %q, want %q", got, tc.wantLevel)
			}
		})
	}
}

func TestWatcher_CheckReportsRejectedContentOnce(t *testing.T) {
	t.Parallel()
	w, path := newWatcher(t, watcherValidYAML)
	writeFile(t, path, watcherInvalidYAML)

	if _, _, err := w.Check(); err == nil {
		t.Fatal("first check: expected error")
	}
	if _, ok, err := w.Check(); ok || err != nil {
		t.Fatalf("second check: ok=%v err=%v, want silent skip", ok, err)
	}

	// Fixing the file is picked up again.
	writeFile(t, path, watcherUpdatedYAML)
	if _, ok, err := w.Check(); !ok || err != nil {
		t.Fatalf("after fix: ok=%v err=%v, want accepted", ok, err)
	}
}

func TestWatcher_CheckAppliesEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{config.EnvLogLevel: "warn"}
	w, path := newWatcher(t, watcherValidYAML, config.WithLookupEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	if got := w.Current().Server.LogLevel; got != config.LogWarn {
		t.Fatalf("initial log_level = %q, want env override warn", got)
	}

	// The file's log level change is masked by the environment.
	writeFile(t, path, watcherUpdatedYAML)
	r, ok, err := w.Check()
	if err != nil || !ok {
		t.Fatalf("Check() ok=%v err=%v", ok, err)
	}
	if r.Diff.LogLevelChanged {
		t.Errorf("diff = %+v, log level should stay pinned by env", r.Diff)
	}
}

func TestWatcher_RunDeliversReloadsUntilCancelled(t *testing.T) {
	t.Parallel()
	w, path := newWatcher(t, watcherValidYAML, config.WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan config.Reload, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(r config.Reload) { reloads <- r })
	}()

	writeFile(t, path, watcherUpdatedYAML)
	select {
	case r := <-reloads:
		if r.Diff.NewLogLevel != config.LogDebug {
			t.Errorf("reload diff = %+v", r.Diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
