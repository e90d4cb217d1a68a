package basicauth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/brattlof/userboard/pkg/plugin"
)

// BasicAuthPlugin guards the dashboard behind HTTP Basic credentials.
type BasicAuthPlugin struct {
	users   map[string]string
	paths   []string
	exclude []string
	realm   string
}

func New() *BasicAuthPlugin {
	return &BasicAuthPlugin{
		users:   make(map[string]string),
		exclude: []string{"/healthz"},
		realm:   "userboard",
	}
}

func (p *BasicAuthPlugin) Name() string        { return "basicauth" }
func (p *BasicAuthPlugin) Version() string     { return "1.1.0" }
func (p *BasicAuthPlugin) Description() string { return "HTTP Basic Authentication in front of the dashboard" }

// Init reads `users` as "name:password" entries, optional `paths` prefixes to
// protect (all when empty), `exclude` prefixes left open and `realm`.
func (p *BasicAuthPlugin) Init(ctx *plugin.PluginContext) error {
	for _, user := range ctx.ConfigStringSlice("users") {
		name, pass, ok := strings.Cut(user, ":")
		if !ok || name == "" {
			return fmt.Errorf("basicauth: malformed user entry %q, want name:password", user)
		}
		p.users[name] = pass
	}
	if len(p.users) == 0 {
		return fmt.Errorf("basicauth: no users configured")
	}

	if paths := ctx.ConfigStringSlice("paths"); len(paths) > 0 {
		p.paths = paths
	}
	if ctx.Has("exclude") {
		p.exclude = ctx.ConfigStringSlice("exclude")
	}
	if realm := ctx.ConfigString("realm"); realm != "" {
		p.realm = realm
	}

	ctx.Logger.Debug("basic auth configured", "users", len(p.users), "paths", p.paths, "exclude", p.exclude)
	return nil
}

func (p *BasicAuthPlugin) Close() error {
	return nil
}

func (p *BasicAuthPlugin) Priority() int { return 100 }

func (p *BasicAuthPlugin) OnMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !p.shouldProtect(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				p.unauthorized(w)
				return
			}

			expectedPass, exists := p.users[user]
			if !exists {
				p.unauthorized(w)
				return
			}

			if subtle.ConstantTimeCompare([]byte(pass), []byte(expectedPass)) != 1 {
				p.unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p *BasicAuthPlugin) shouldProtect(path string) bool {
	for _, prefix := range p.exclude {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	if len(p.paths) == 0 {
		return true
	}
	for _, prefix := range p.paths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *BasicAuthPlugin) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, p.realm))
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
