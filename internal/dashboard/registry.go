package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RegistryOptions struct {
	// IdleTimeout is how long a view survives without requests or live sockets.
	IdleTimeout time.Duration
	// MaxViews caps the number of mounted views. Opening a view at the cap
	// evicts the least recently seen one. Zero means no cap.
	MaxViews int
	// IsActive reports whether a view still has a connected browser.
	IsActive func(viewID string) bool
	Now      func() time.Time
}

// Registry holds one view per rendered dashboard page.
type Registry struct {
	deps Deps
	opts RegistryOptions

	mu    sync.Mutex
	views map[string]*View
}

func NewRegistry(deps Deps, opts RegistryOptions) *Registry {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		deps:  deps.withDefaults(),
		opts:  opts,
		views: make(map[string]*View),
	}
}

// Open mounts a new view under a fresh id. Every page render opens its own
// view, so reloads and additional tabs never share state.
func (r *Registry) Open() *View {
	v := NewView(uuid.NewString(), r.deps)
	v.Touch(r.opts.Now())

	r.mu.Lock()
	var evicted *View
	if r.opts.MaxViews > 0 && len(r.views) >= r.opts.MaxViews {
		evicted = r.oldestLocked()
		delete(r.views, evicted.ID())
	}
	r.views[v.ID()] = v
	n := len(r.views)
	r.mu.Unlock()

	if evicted != nil {
		evicted.Unmount()
		r.deps.Metrics.ViewEvicted()
		r.deps.Logger.Debug("view unmounted", "view", evicted.ID(), "reason", "capacity")
	}
	r.deps.Metrics.SetViewsActive(n)
	r.deps.Logger.Debug("view mounted", "view", v.ID())
	v.Mount()
	return v
}

// oldestLocked returns the least recently seen view, preferring views
// without a live socket. Callers hold r.mu and the map is not empty.
func (r *Registry) oldestLocked() *View {
	var oldest, oldestIdle *View
	for id, v := range r.views {
		seen := v.LastSeen()
		if oldest == nil || seen.Before(oldest.LastSeen()) {
			oldest = v
		}
		if r.opts.IsActive != nil && r.opts.IsActive(id) {
			continue
		}
		if oldestIdle == nil || seen.Before(oldestIdle.LastSeen()) {
			oldestIdle = v
		}
	}
	if oldestIdle != nil {
		return oldestIdle
	}
	return oldest
}

// Lookup returns a live view and marks it as seen.
func (r *Registry) Lookup(id string) (*View, bool) {
	if id == "" {
		return nil, false
	}

	r.mu.Lock()
	v, ok := r.views[id]
	r.mu.Unlock()

	if !ok || v.Unmounted() {
		return nil, false
	}
	v.Touch(r.opts.Now())
	return v, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Reap unmounts views that have been idle longer than the idle timeout and
// have no live socket. It returns how many were removed.
func (r *Registry) Reap() int {
	now := r.opts.Now()

	r.mu.Lock()
	var expired []*View
	for id, v := range r.views {
		if r.opts.IsActive != nil && r.opts.IsActive(id) {
			v.Touch(now)
			continue
		}
		if now.Sub(v.LastSeen()) > r.opts.IdleTimeout {
			expired = append(expired, v)
			delete(r.views, id)
		}
	}
	n := len(r.views)
	r.mu.Unlock()

	for _, v := range expired {
		v.Unmount()
		r.deps.Logger.Debug("view unmounted", "view", v.ID(), "reason", "idle")
	}
	if len(expired) > 0 {
		r.deps.Metrics.SetViewsActive(n)
	}
	return len(expired)
}

// Run reaps idle views every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(); n > 0 {
				r.deps.Logger.Info("reaped idle views", "count", n)
			}
		}
	}
}

// Release unmounts the view with id and forgets it. It reports whether the
// view was registered.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	v, ok := r.views[id]
	if ok {
		delete(r.views, id)
	}
	n := len(r.views)
	r.mu.Unlock()

	if !ok {
		return false
	}
	v.Unmount()
	r.deps.Metrics.SetViewsActive(n)
	r.deps.Logger.Debug("view unmounted", "view", id, "reason", "closed")
	return true
}

// Close unmounts every view.
func (r *Registry) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	r.mu.Unlock()

	for _, v := range views {
		v.Unmount()
	}
	r.deps.Metrics.SetViewsActive(0)
}
