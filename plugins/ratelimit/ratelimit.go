package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/brattlof/userboard/pkg/plugin"
)

// RateLimitPlugin caps requests per client IP with a sliding window.
type RateLimitPlugin struct {
	limit   int
	window  time.Duration
	exclude []string
	limiter func(http.Handler) http.Handler
}

func New() *RateLimitPlugin {
	return &RateLimitPlugin{
		limit:   100,
		window:  time.Minute,
		exclude: []string{"/ws", "/healthz", "/metrics"},
	}
}

func (p *RateLimitPlugin) Name() string        { return "ratelimit" }
func (p *RateLimitPlugin) Version() string     { return "2.0.0" }
func (p *RateLimitPlugin) Description() string { return "Per-IP rate limiting" }

func (p *RateLimitPlugin) Init(ctx *plugin.PluginContext) error {
	if limit := ctx.ConfigInt("limit"); limit > 0 {
		p.limit = limit
	}
	if windowSec := ctx.ConfigInt("windowSeconds"); windowSec > 0 {
		p.window = time.Duration(windowSec) * time.Second
	}
	if ctx.Has("exclude") {
		p.exclude = ctx.ConfigStringSlice("exclude")
	}

	logger := ctx.Logger
	p.limiter = httprate.Limit(p.limit, p.window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("rate limit exceeded", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		}),
	)
	return nil
}

func (p *RateLimitPlugin) Close() error {
	return nil
}

func (p *RateLimitPlugin) Priority() int { return 50 }

func (p *RateLimitPlugin) OnMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := p.limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range p.exclude {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			limited.ServeHTTP(w, r)
		})
	}
}
