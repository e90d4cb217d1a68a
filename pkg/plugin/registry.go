package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	configs map[string]map[string]interface{}
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		plugins: make(map[string]Plugin),
		configs: make(map[string]map[string]interface{}),
		logger:  logger,
	}
}

func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}

	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	r.plugins[name] = p
	r.logger.Debug("plugin registered", "name", name, "version", p.Version())
	return nil
}

func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

func (r *Registry) SetConfig(name string, config map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = config
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Info(name string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	if !ok {
		return nil, false
	}
	return describe(p, r.configs[name]), true
}

func (r *Registry) AllInfo() []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]*Info, 0, len(r.plugins))
	for name, p := range r.plugins {
		infos = append(infos, describe(p, r.configs[name]))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Describe reports a plugin's metadata and the hooks it implements.
func Describe(p Plugin) *Info {
	return describe(p, nil)
}

func describe(p Plugin, config map[string]interface{}) *Info {
	info := &Info{
		Name:        p.Name(),
		Version:     p.Version(),
		Description: p.Description(),
		Config:      config,
		Hooks:       []HookType{},
	}
	if h, ok := p.(Hook); ok {
		info.Priority = h.Priority()
	}
	if _, ok := p.(RouterHook); ok {
		info.Hooks = append(info.Hooks, HookRouter)
	}
	if _, ok := p.(MiddlewareHook); ok {
		info.Hooks = append(info.Hooks, HookMiddleware)
	}
	if _, ok := p.(DevHook); ok {
		info.Hooks = append(info.Hooks, HookDev)
	}
	return info
}

// Middlewares returns every middleware hook's handler wrapper, lowest
// priority first. Names break ties so the order is stable.
func (r *Registry) Middlewares() []func(http.Handler) http.Handler {
	hooks := collect[MiddlewareHook](r)
	out := make([]func(http.Handler) http.Handler, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, h.OnMiddleware())
	}
	return out
}

func (r *Registry) RouterHooks() []RouterHook {
	return collect[RouterHook](r)
}

func (r *Registry) DevHooks() []DevHook {
	return collect[DevHook](r)
}

func collect[H Hook](r *Registry) []H {
	r.mu.RLock()
	type entry struct {
		name string
		hook H
	}
	var entries []entry
	for name, p := range r.plugins {
		if h, ok := p.(H); ok {
			entries = append(entries, entry{name: name, hook: h})
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		pi, pj := entries[i].hook.Priority(), entries[j].hook.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].name < entries[j].name
	})

	hooks := make([]H, len(entries))
	for i, e := range entries {
		hooks[i] = e.hook
	}
	return hooks
}

func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.plugins {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close plugin %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
