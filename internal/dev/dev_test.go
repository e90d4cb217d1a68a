package dev

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brattlof/userboard/pkg/plugin"
)

type recordingNotifier struct {
	mu    sync.Mutex
	files []string
}

func (n *recordingNotifier) Reload(file string) {
	n.mu.Lock()
	n.files = append(n.files, file)
	n.mu.Unlock()
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.files...)
}

type recordingHook struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	reloaded []string
}

func (h *recordingHook) Priority() int { return 0 }

func (h *recordingHook) OnDevStart() error {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	return nil
}

func (h *recordingHook) OnDevReload(path string) error {
	h.mu.Lock()
	h.reloaded = append(h.reloaded, path)
	h.mu.Unlock()
	return nil
}

func (h *recordingHook) OnDevStop() error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	return nil
}

func TestWatcher_Accept(t *testing.T) {
	w := &Watcher{debounce: make(map[string]time.Time)}
	now := time.Now()

	assert.True(t, w.accept("internal/app.go", now))
	assert.False(t, w.accept("internal/app.go", now.Add(100*time.Millisecond)))
	assert.True(t, w.accept("internal/app.go", now.Add(time.Second)))

	assert.True(t, w.accept("internal/templates/page.templ", now))
	assert.False(t, w.accept("internal/templates/page_templ.go", now))
	assert.True(t, w.accept("public/site.CSS", now))
	assert.True(t, w.accept("userboard.yml", now))
	assert.False(t, w.accept("README.md", now))
	assert.False(t, w.accept("internal/app_test.go", now))
}

func TestSession_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "internal")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	notifier := &recordingNotifier{}
	hook := &recordingHook{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := Start(ctx, Options{
		Dirs:     []string{dir},
		Notifier: notifier,
		Hooks:    []plugin.DevHook{hook},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	hook.mu.Lock()
	assert.True(t, hook.started)
	hook.mu.Unlock()

	target := filepath.Join(sub, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	require.Eventually(t, func() bool {
		return len(notifier.seen()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	for _, f := range notifier.seen() {
		assert.Equal(t, target, f)
	}

	require.NoError(t, s.Close())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.True(t, hook.stopped)
	assert.Contains(t, hook.reloaded, target)
}

func TestStart_NoWatchableDirs(t *testing.T) {
	hook := &recordingHook{}
	_, err := Start(context.Background(), Options{
		Dirs:     []string{filepath.Join(t.TempDir(), "missing")},
		Notifier: &recordingNotifier{},
		Hooks:    []plugin.DevHook{hook},
	})
	require.Error(t, err)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.True(t, hook.stopped)
}

type recordingRunner struct {
	mu   sync.Mutex
	cmds []string
	err  error
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

func TestBuilder_Rebuild(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		rebuilt bool
		cmds    []string
	}{
		{
			name:    "templ regenerates then builds",
			file:    "internal/templates/page.templ",
			rebuilt: true,
			cmds:    []string{"templ generate", "go build -o /tmp/ub-dev ./cmd/ub"},
		},
		{
			name:    "go builds",
			file:    "internal/dashboard/view.go",
			rebuilt: true,
			cmds:    []string{"go build -o /tmp/ub-dev ./cmd/ub"},
		},
		{
			name: "stylesheet is left to the browser",
			file: "public/site.css",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			b := NewBuilder("./cmd/ub", "/tmp/ub-dev", runner.run, slog.New(slog.NewTextHandler(io.Discard, nil)))

			rebuilt, err := b.Rebuild(context.Background(), tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.rebuilt, rebuilt)
			assert.Equal(t, tt.cmds, runner.seen())
		})
	}
}

func TestBuilder_GenerateFailureSkipsBuild(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	b := NewBuilder("./cmd/ub", "/tmp/ub-dev", runner.run, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rebuilt, err := b.Rebuild(context.Background(), "page.templ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "templ generate")
	assert.False(t, rebuilt)
	assert.Equal(t, []string{"templ generate"}, runner.seen())
}

func TestSession_RebuildReplacesBrowserReload(t *testing.T) {
	runner := &recordingRunner{}
	notifier := &recordingNotifier{}
	var binaries []string
	s := &Session{
		ctx:       context.Background(),
		notifier:  notifier,
		builder:   NewBuilder("./cmd/ub", "/tmp/ub-dev", runner.run, slog.New(slog.NewTextHandler(io.Discard, nil))),
		onRebuilt: func(binary string) { binaries = append(binaries, binary) },
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	s.handleChange("internal/dashboard/view.go")
	assert.Equal(t, []string{"/tmp/ub-dev"}, binaries)
	assert.Empty(t, notifier.seen())

	s.handleChange("public/site.css")
	assert.Equal(t, []string{"public/site.css"}, notifier.seen())
	assert.Len(t, binaries, 1)
}

func TestSession_FailedRebuildKeepsServerRunning(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 2")}
	notifier := &recordingNotifier{}
	called := false
	s := &Session{
		ctx:       context.Background(),
		notifier:  notifier,
		builder:   NewBuilder("./cmd/ub", "/tmp/ub-dev", runner.run, slog.New(slog.NewTextHandler(io.Discard, nil))),
		onRebuilt: func(string) { called = true },
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	s.handleChange("internal/dashboard/view.go")
	assert.False(t, called)
	assert.Empty(t, notifier.seen())
}
