package dev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brattlof/userboard/pkg/plugin"
)

// Notifier tells connected browsers to reload.
type Notifier interface {
	Reload(file string)
}

// Session ties the file watcher to browser reloads and dev-hook plugins for
// the lifetime of `ub dev`.
type Session struct {
	ctx       context.Context
	watcher   *Watcher
	notifier  Notifier
	hooks     []plugin.DevHook
	builder   *Builder
	onRebuilt func(binary string)
	logger    *slog.Logger
}

type Options struct {
	Dirs     []string
	Notifier Notifier
	Hooks    []plugin.DevHook
	// Builder, when set, rebuilds the binary on Go and templ changes
	// instead of reloading browsers.
	Builder *Builder
	// OnRebuilt receives the path of each freshly built binary.
	OnRebuilt func(binary string)
	Logger    *slog.Logger
}

func Start(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hooks := opts.Hooks
	dirs := opts.Dirs
	s := &Session{
		ctx:       ctx,
		notifier:  opts.Notifier,
		hooks:     hooks,
		builder:   opts.Builder,
		onRebuilt: opts.OnRebuilt,
		logger:    logger,
	}

	w, err := NewWatcher(dirs, s.handleChange, logger)
	if err != nil {
		return nil, err
	}
	s.watcher = w

	for _, h := range hooks {
		if err := h.OnDevStart(); err != nil {
			w.Close()
			return nil, fmt.Errorf("dev hook start: %w", err)
		}
	}

	if err := w.Start(ctx); err != nil {
		s.stopHooks()
		w.Close()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	logger.Info("Watching for changes", "dirs", dirs)
	return s, nil
}

func (s *Session) handleChange(path string) {
	for _, h := range s.hooks {
		if err := h.OnDevReload(path); err != nil {
			s.logger.Warn("Dev hook failed", "file", path, "error", err)
		}
	}

	if s.builder != nil {
		rebuilt, err := s.builder.Rebuild(s.ctx, path)
		if err != nil {
			s.logger.Error("Rebuild failed", "file", path, "error", err)
			return
		}
		if rebuilt {
			s.logger.Info("Rebuilt binary", "file", path, "binary", s.builder.Output())
			if s.onRebuilt != nil {
				s.onRebuilt(s.builder.Output())
			}
			return
		}
	}
	s.notifier.Reload(path)
}

func (s *Session) stopHooks() error {
	var errs []error
	for _, h := range s.hooks {
		if err := h.OnDevStop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) Close() error {
	return errors.Join(s.watcher.Close(), s.stopHooks())
}
