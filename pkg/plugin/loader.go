package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type PluginOptions map[string]interface{}

// Factory builds a fresh, uninitialized plugin.
type Factory func() Plugin

// Loader enables compiled-in plugins by name.
type Loader struct {
	registry  *Registry
	factories map[string]Factory
	logger    *slog.Logger
	mu        sync.Mutex
	loaded    map[string]struct{}
}

func NewLoader(registry *Registry, factories map[string]Factory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		registry:  registry,
		factories: factories,
		logger:    logger,
		loaded:    make(map[string]struct{}),
	}
}

func (l *Loader) LoadFromConfig(ctx context.Context, enabled []string, configs map[string]map[string]interface{}) error {
	for _, name := range enabled {
		config := PluginOptions(configs[name])
		if config == nil {
			config = make(PluginOptions)
		}

		if err := l.LoadPlugin(ctx, name, config); err != nil {
			return fmt.Errorf("load plugin %s: %w", name, err)
		}
	}
	return nil
}

func (l *Loader) LoadPlugin(ctx context.Context, name string, config PluginOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.loaded[name]; exists {
		return fmt.Errorf("plugin %s already loaded", name)
	}

	factory, ok := l.factories[name]
	if !ok {
		return fmt.Errorf("unknown plugin %q (available: %v)", name, l.Available())
	}

	p := factory()
	pluginCtx := NewPluginContext(ctx, config, l.logger.With("plugin", name))

	if err := p.Init(pluginCtx); err != nil {
		return fmt.Errorf("init plugin: %w", err)
	}

	if err := l.registry.Register(p); err != nil {
		p.Close()
		return fmt.Errorf("register plugin: %w", err)
	}

	l.registry.SetConfig(name, config)
	l.loaded[name] = struct{}{}

	l.logger.Info("plugin loaded", "name", name, "version", p.Version())
	return nil
}

// Available lists every plugin the binary was built with.
func (l *Loader) Available() []string {
	names := make([]string, 0, len(l.factories))
	for name := range l.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) LoadedPlugins() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) Close() error {
	return l.registry.CloseAll()
}
