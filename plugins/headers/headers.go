package headers

import (
	"bufio"
	"net"
	"net/http"

	"github.com/unrolled/secure"

	"github.com/brattlof/userboard/pkg/plugin"
)

// The dashboard ships an inline stylesheet and script and talks back over a
// same-origin websocket.
const defaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; connect-src 'self'"

// HeadersPlugin applies security headers and custom header rewrites.
type HeadersPlugin struct {
	add      map[string]string
	remove   []string
	override map[string]string
	secure   *secure.Secure
}

func New() *HeadersPlugin {
	return &HeadersPlugin{
		add:      make(map[string]string),
		override: make(map[string]string),
	}
}

func (p *HeadersPlugin) Name() string    { return "headers" }
func (p *HeadersPlugin) Version() string { return "1.1.0" }
func (p *HeadersPlugin) Description() string {
	return "Security headers plus add, remove, and override rules"
}

func (p *HeadersPlugin) Init(ctx *plugin.PluginContext) error {
	for k, v := range ctx.ConfigStringMap("add") {
		p.add[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range ctx.ConfigStringMap("override") {
		p.override[http.CanonicalHeaderKey(k)] = v
	}
	for _, h := range ctx.ConfigStringSlice("remove") {
		p.remove = append(p.remove, http.CanonicalHeaderKey(h))
	}

	opts := secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: defaultCSP,
		IsDevelopment:         ctx.ConfigBool("development"),
	}
	if ctx.Has("frameDeny") {
		opts.FrameDeny = ctx.ConfigBool("frameDeny")
	}
	if ctx.Has("contentSecurityPolicy") {
		opts.ContentSecurityPolicy = ctx.ConfigString("contentSecurityPolicy")
	}
	if v := ctx.ConfigString("referrerPolicy"); v != "" {
		opts.ReferrerPolicy = v
	}
	if sts := ctx.ConfigInt("stsSeconds"); sts > 0 {
		opts.STSSeconds = int64(sts)
		opts.STSIncludeSubdomains = ctx.ConfigBool("stsIncludeSubdomains")
	}
	p.secure = secure.New(opts)

	return nil
}

func (p *HeadersPlugin) Close() error {
	return nil
}

func (p *HeadersPlugin) Priority() int { return 200 }

func (p *HeadersPlugin) OnMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.secure != nil {
				if err := p.secure.Process(w, r); err != nil {
					// secure has already answered the request
					return
				}
			}

			for key, value := range p.add {
				if w.Header().Get(key) == "" {
					w.Header().Set(key, value)
				}
			}

			next.ServeHTTP(&rewriteWriter{ResponseWriter: w, plugin: p}, r)
		})
	}
}

// apply runs the remove and override rules against headers the handler has
// set by the time the status line goes out.
func (p *HeadersPlugin) apply(h http.Header) {
	for _, header := range p.remove {
		h.Del(header)
	}
	for key, value := range p.override {
		h.Set(key, value)
	}
}

type rewriteWriter struct {
	http.ResponseWriter
	plugin      *HeadersPlugin
	wroteHeader bool
}

func (w *rewriteWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.plugin.apply(w.Header())
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *rewriteWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *rewriteWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *rewriteWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *rewriteWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
