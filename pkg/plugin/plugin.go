package plugin

import (
	"net/http"
)

// Plugin is a compiled-in extension enabled by name from configuration.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Init(ctx *PluginContext) error
	Close() error
}

type Hook interface {
	Priority() int
}

// RouterHook lets a plugin add routes next to the dashboard.
type RouterHook interface {
	Hook
	OnRouterInit(router Router) error
}

// MiddlewareHook wraps every request. Lower priorities run first.
type MiddlewareHook interface {
	Hook
	OnMiddleware() func(http.Handler) http.Handler
}

// DevHook is notified by `ub dev` when watched files change.
type DevHook interface {
	Hook
	OnDevStart() error
	OnDevReload(path string) error
	OnDevStop() error
}

type Router interface {
	Get(pattern string, handler http.HandlerFunc)
	Post(pattern string, handler http.HandlerFunc)
	Put(pattern string, handler http.HandlerFunc)
	Delete(pattern string, handler http.HandlerFunc)
	Use(middleware func(http.Handler) http.Handler)
	Mount(pattern string, handler http.Handler)
}

type HookType string

const (
	HookRouter     HookType = "router"
	HookMiddleware HookType = "middleware"
	HookDev        HookType = "dev"
)

type Info struct {
	Name        string
	Version     string
	Description string
	Priority    int
	Config      map[string]interface{}
	Hooks       []HookType
}
