package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PluginContext carries a plugin's options and shared services into Init.
// Option keys match case-insensitively because viper lowercases them.
type PluginContext struct {
	Config  map[string]interface{}
	Logger  *slog.Logger
	Context context.Context
}

func NewPluginContext(ctx context.Context, config map[string]interface{}, logger *slog.Logger) *PluginContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginContext{
		Config:  config,
		Logger:  logger,
		Context: ctx,
	}
}

func (p *PluginContext) lookup(key string) (interface{}, bool) {
	if p.Config == nil {
		return nil, false
	}
	if val, ok := p.Config[key]; ok {
		return val, true
	}
	for k, val := range p.Config {
		if strings.EqualFold(k, key) {
			return val, true
		}
	}
	return nil, false
}

// Has reports whether the option is set at all.
func (p *PluginContext) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

func (p *PluginContext) ConfigString(key string) string {
	val, ok := p.lookup(key)
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		return ""
	}
	return s
}

func (p *PluginContext) ConfigInt(key string) int {
	val, ok := p.lookup(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p *PluginContext) ConfigBool(key string) bool {
	val, ok := p.lookup(key)
	if !ok {
		return false
	}
	b, ok := val.(bool)
	return b && ok
}

func (p *PluginContext) ConfigStringSlice(key string) []string {
	val, ok := p.lookup(key)
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// ConfigStringMap reads a nested table of string values. Non-string values
// are formatted with %v.
func (p *PluginContext) ConfigStringMap(key string) map[string]string {
	val, ok := p.lookup(key)
	if !ok {
		return nil
	}

	result := make(map[string]string)
	switch v := val.(type) {
	case map[string]string:
		for k, s := range v {
			result[k] = s
		}
	case map[string]interface{}:
		for k, item := range v {
			if s, ok := item.(string); ok {
				result[k] = s
			} else {
				result[k] = fmt.Sprint(item)
			}
		}
	default:
		return nil
	}
	return result
}
