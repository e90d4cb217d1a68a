package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brattlof/userboard/pkg/plugin"
)

func newHandler(t *testing.T, config map[string]interface{}) http.Handler {
	t.Helper()
	p := New()
	if err := p.Init(plugin.NewPluginContext(nil, config, nil)); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return p.OnMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
}

func hit(h http.Handler, path, remote string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitPlugin_Defaults(t *testing.T) {
	p := New()
	if p.Name() != "ratelimit" {
		t.Errorf("Name() = %q, want ratelimit", p.Name())
	}
	if p.limit != 100 {
		t.Errorf("limit = %d, want 100", p.limit)
	}
}

func TestRateLimitPlugin_Limit(t *testing.T) {
	h := newHandler(t, map[string]interface{}{"limit": 2, "windowseconds": 60})

	for i := 0; i < 2; i++ {
		if got := hit(h, "/", "10.0.0.1:1234"); got != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, got, http.StatusOK)
		}
	}
	if got := hit(h, "/", "10.0.0.1:1234"); got != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", got, http.StatusTooManyRequests)
	}
	if got := hit(h, "/", "10.0.0.2:1234"); got != http.StatusOK {
		t.Errorf("other client status = %d, want %d", got, http.StatusOK)
	}
}

func TestRateLimitPlugin_Exclude(t *testing.T) {
	h := newHandler(t, map[string]interface{}{"limit": 1})

	for i := 0; i < 3; i++ {
		if got := hit(h, "/healthz", "10.0.0.1:1234"); got != http.StatusOK {
			t.Fatalf("excluded path status = %d, want %d", got, http.StatusOK)
		}
	}
	if got := hit(h, "/", "10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
	if got := hit(h, "/refresh", "10.0.0.1:1234"); got != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", got, http.StatusTooManyRequests)
	}
}
