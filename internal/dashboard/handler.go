package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/brattlof/userboard/internal/app/render"
	"github.com/brattlof/userboard/internal/live"
	"github.com/brattlof/userboard/internal/templates"
)

// ViewParam names the query or form field that carries a page's view id.
const ViewParam = "view"

type Handler struct {
	registry *Registry
	hub      *live.Hub
	renderer *render.Renderer
	title    string
	locale   language.Tag
	logger   *slog.Logger
}

type HandlerOptions struct {
	Title  string
	Locale language.Tag
	Logger *slog.Logger
}

// NewHandler binds views to live sockets on hub: a view is unmounted as soon
// as the last socket of its page closes.
func NewHandler(registry *Registry, hub *live.Hub, renderer *render.Renderer, opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Title == "" {
		opts.Title = "User Management"
	}
	if opts.Locale == language.Und {
		opts.Locale = language.AmericanEnglish
	}
	hub.OnLeave(func(id string) {
		registry.Release(id)
	})
	return &Handler{
		registry: registry,
		hub:      hub,
		renderer: renderer,
		title:    opts.Title,
		locale:   opts.Locale,
		logger:   opts.Logger,
	}
}

// Routes registers the request/response endpoints on r. The websocket
// endpoint is served by Socket and lives outside request timeouts.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.page)
	r.Get("/fragment", h.fragment)
	r.Post("/refresh", h.refresh)
}

// page mounts a fresh view for every render; the page carries its id.
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	view := h.registry.Open()

	w.Header().Set("Cache-Control", "no-store")
	page := templates.Page(view.ViewData(), templates.PageOptions{
		Title:  h.title,
		Locale: h.viewerLocale(r),
	})
	if err := h.renderer.HTML(r.Context(), w, http.StatusOK, page); err != nil {
		h.logger.Error("Failed to render dashboard page", "view", view.ID(), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) fragment(w http.ResponseWriter, r *http.Request) {
	view, ok := h.registry.Lookup(viewID(r))
	if !ok {
		w.WriteHeader(http.StatusGone)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	app := templates.App(h.title, view.ViewData(), h.viewerLocale(r))
	if err := h.renderer.HTML(r.Context(), w, http.StatusOK, app); err != nil {
		h.logger.Error("Failed to render dashboard fragment", "view", view.ID(), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	view, ok := h.registry.Lookup(viewID(r))

	if r.Header.Get("X-Requested-With") != "fetch" {
		// A plain form post is followed by a new page and a new view,
		// which fetches on mount.
		if ok {
			h.registry.Release(view.ID())
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if !ok {
		w.WriteHeader(http.StatusGone)
		return
	}
	if !view.Refresh() {
		h.logger.Debug("refresh ignored, users fetch in flight", "view", view.ID())
	}
	w.WriteHeader(http.StatusNoContent)
}

// Socket binds a live connection to the view named in the request. Unknown
// views still get a socket so the page can notice and reload.
func (h *Handler) Socket(w http.ResponseWriter, r *http.Request) {
	id := ""
	if view, ok := h.registry.Lookup(viewID(r)); ok {
		id = view.ID()
	}
	h.hub.Serve(w, r, id)
}

func (h *Handler) viewerLocale(r *http.Request) language.Tag {
	return templates.MatchLocale(r.Header.Get("Accept-Language"), h.locale)
}

func viewID(r *http.Request) string {
	return r.FormValue(ViewParam)
}
