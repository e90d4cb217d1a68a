package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockPlugin struct {
	name        string
	version     string
	description string
	initCalled  bool
	closeCalled bool
	initError   error
	closeError  error
}

func (m *mockPlugin) Name() string        { return m.name }
func (m *mockPlugin) Version() string     { return m.version }
func (m *mockPlugin) Description() string { return m.description }
func (m *mockPlugin) Init(ctx *PluginContext) error {
	m.initCalled = true
	return m.initError
}
func (m *mockPlugin) Close() error {
	m.closeCalled = true
	return m.closeError
}

type mockMiddlewarePlugin struct {
	mockPlugin
	priority int
	header   string
}

func (m *mockMiddlewarePlugin) Priority() int { return m.priority }

func (m *mockMiddlewarePlugin) OnMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Order", m.header)
			next.ServeHTTP(w, r)
		})
	}
}

type mockAllHooksPlugin struct {
	mockMiddlewarePlugin
}

func (m *mockAllHooksPlugin) OnRouterInit(router Router) error { return nil }
func (m *mockAllHooksPlugin) OnDevStart() error                { return nil }
func (m *mockAllHooksPlugin) OnDevReload(path string) error    { return nil }
func (m *mockAllHooksPlugin) OnDevStop() error                 { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPluginContext(t *testing.T) {
	ctx := NewPluginContext(context.Background(), map[string]interface{}{
		"string":        "value",
		"int":           42,
		"float":         float64(7),
		"bool":          true,
		"strings":       []string{"a", "b", "c"},
		"mixed":         []interface{}{"x", 1, "y"},
		"windowseconds": 30,
		"add":           map[string]interface{}{"x-frame-options": "DENY", "x-num": 5},
	}, nil)

	t.Run("ConfigString", func(t *testing.T) {
		if got := ctx.ConfigString("string"); got != "value" {
			t.Errorf("ConfigString = %q, want %q", got, "value")
		}
		if got := ctx.ConfigString("missing"); got != "" {
			t.Errorf("ConfigString(missing) = %q, want empty", got)
		}
	})

	t.Run("ConfigInt", func(t *testing.T) {
		if got := ctx.ConfigInt("int"); got != 42 {
			t.Errorf("ConfigInt = %d, want 42", got)
		}
		if got := ctx.ConfigInt("float"); got != 7 {
			t.Errorf("ConfigInt(float) = %d, want 7", got)
		}
		if got := ctx.ConfigInt("missing"); got != 0 {
			t.Errorf("ConfigInt(missing) = %d, want 0", got)
		}
	})

	t.Run("case insensitive keys", func(t *testing.T) {
		if got := ctx.ConfigInt("windowSeconds"); got != 30 {
			t.Errorf("ConfigInt(windowSeconds) = %d, want 30", got)
		}
	})

	t.Run("ConfigBool", func(t *testing.T) {
		if got := ctx.ConfigBool("bool"); !got {
			t.Errorf("ConfigBool = %v, want true", got)
		}
		if got := ctx.ConfigBool("string"); got {
			t.Errorf("ConfigBool(string) = %v, want false", got)
		}
	})

	t.Run("ConfigStringSlice", func(t *testing.T) {
		got := ctx.ConfigStringSlice("strings")
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Errorf("ConfigStringSlice = %v, want [a b c]", got)
		}
		got = ctx.ConfigStringSlice("mixed")
		if len(got) != 2 || got[0] != "x" || got[1] != "y" {
			t.Errorf("ConfigStringSlice(mixed) = %v, want [x y]", got)
		}
	})

	t.Run("ConfigStringMap", func(t *testing.T) {
		got := ctx.ConfigStringMap("add")
		if got["x-frame-options"] != "DENY" || got["x-num"] != "5" {
			t.Errorf("ConfigStringMap = %v", got)
		}
		if ctx.ConfigStringMap("string") != nil {
			t.Error("ConfigStringMap(string) should be nil")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		empty := NewPluginContext(nil, nil, nil)
		if empty.Context == nil || empty.Logger == nil {
			t.Error("NewPluginContext should fill context and logger")
		}
		if got := empty.ConfigString("any"); got != "" {
			t.Errorf("ConfigString on nil config = %q", got)
		}
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(discardLogger())

	t.Run("Register", func(t *testing.T) {
		p := &mockPlugin{name: "test", version: "1.0.0", description: "test plugin"}
		if err := registry.Register(p); err != nil {
			t.Errorf("Register() error = %v", err)
		}
		if registry.Count() != 1 {
			t.Errorf("Count() = %d, want 1", registry.Count())
		}
	})

	t.Run("RegisterDuplicate", func(t *testing.T) {
		p := &mockPlugin{name: "test", version: "2.0.0"}
		if err := registry.Register(p); err == nil {
			t.Error("Register() should fail for duplicate")
		}
	})

	t.Run("RegisterEmptyName", func(t *testing.T) {
		if err := registry.Register(&mockPlugin{}); err == nil {
			t.Error("Register() should fail for empty name")
		}
	})

	t.Run("Get", func(t *testing.T) {
		p, ok := registry.Get("test")
		if !ok {
			t.Fatal("Get() not found")
		}
		if p.Name() != "test" {
			t.Errorf("Get() = %q, want test", p.Name())
		}
	})

	t.Run("Names", func(t *testing.T) {
		names := registry.Names()
		if len(names) != 1 || names[0] != "test" {
			t.Errorf("Names() = %v, want [test]", names)
		}
	})
}

func TestRegistryMiddlewaresOrder(t *testing.T) {
	registry := NewRegistry(discardLogger())

	registry.Register(&mockMiddlewarePlugin{mockPlugin: mockPlugin{name: "late"}, priority: 200, header: "late"})
	registry.Register(&mockMiddlewarePlugin{mockPlugin: mockPlugin{name: "early"}, priority: 100, header: "early"})
	registry.Register(&mockMiddlewarePlugin{mockPlugin: mockPlugin{name: "also-early"}, priority: 100, header: "also-early"})
	registry.Register(&mockPlugin{name: "plain"})

	mws := registry.Middlewares()
	if len(mws) != 3 {
		t.Fatalf("Middlewares() = %d, want 3", len(mws))
	}

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	got := strings.Join(rec.Header().Values("X-Order"), ",")
	if got != "also-early,early,late" {
		t.Errorf("middleware order = %q, want also-early,early,late", got)
	}
}

func TestRegistryInfo(t *testing.T) {
	registry := NewRegistry(discardLogger())

	p := &mockAllHooksPlugin{mockMiddlewarePlugin{
		mockPlugin: mockPlugin{name: "test", version: "1.0.0", description: "test plugin"},
		priority:   7,
	}}
	registry.Register(p)
	registry.SetConfig("test", map[string]interface{}{"key": "value"})

	info, ok := registry.Info("test")
	if !ok {
		t.Fatal("Info() not found")
	}

	if info.Name != "test" || info.Version != "1.0.0" {
		t.Errorf("Info = %+v", info)
	}
	if info.Priority != 7 {
		t.Errorf("Priority = %d, want 7", info.Priority)
	}
	if info.Config["key"] != "value" {
		t.Errorf("Config[key] = %v, want value", info.Config["key"])
	}
	if len(info.Hooks) != 3 {
		t.Errorf("Hooks = %v, want router, middleware and dev", info.Hooks)
	}

	if n := len(registry.RouterHooks()); n != 1 {
		t.Errorf("RouterHooks() = %d, want 1", n)
	}
	if n := len(registry.DevHooks()); n != 1 {
		t.Errorf("DevHooks() = %d, want 1", n)
	}

	if _, ok := registry.Info("missing"); ok {
		t.Error("Info(missing) should not be found")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry(discardLogger())

	ok := &mockPlugin{name: "ok"}
	bad := &mockPlugin{name: "bad", closeError: errors.New("stuck")}
	registry.Register(ok)
	registry.Register(bad)

	err := registry.CloseAll()
	if err == nil || !strings.Contains(err.Error(), "close plugin bad") {
		t.Errorf("CloseAll() error = %v", err)
	}
	if !ok.closeCalled || !bad.closeCalled {
		t.Error("CloseAll() should close every plugin")
	}
}
