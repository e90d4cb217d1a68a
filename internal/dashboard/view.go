package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brattlof/userboard/internal/api"
	"github.com/brattlof/userboard/internal/templates"
)

const usersFailedMessage = "Failed to fetch users"

// Fetcher is the remote API as seen by a view.
type Fetcher interface {
	Health(ctx context.Context) (*api.Health, error)
	Users(ctx context.Context) ([]api.User, error)
}

// Recorder receives dashboard-level metrics.
type Recorder interface {
	RefreshIgnored()
	SetViewsActive(n int)
	ViewEvicted()
}

type noopRecorder struct{}

func (noopRecorder) RefreshIgnored()      {}
func (noopRecorder) SetViewsActive(n int) {}
func (noopRecorder) ViewEvicted()         {}

type Deps struct {
	Fetcher  Fetcher
	Logger   *slog.Logger
	Metrics  Recorder
	// OnChange is called after every state change with the new version.
	OnChange func(viewID string, version uint64)
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = noopRecorder{}
	}
	return d
}

// View owns the state of one dashboard instance and runs its fetches. All
// fetches are bound to the view's lifetime: after Unmount, in-flight requests
// are canceled and late results are dropped.
type View struct {
	id   string
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	mounted  bool
	lastSeen time.Time

	wg sync.WaitGroup
}

func NewView(id string, deps Deps) *View {
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		id:       id,
		deps:     deps.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}
}

func (v *View) ID() string {
	return v.id
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// ViewData is the render input for the current state.
func (v *View) ViewData() templates.ViewData {
	data := v.Snapshot().ViewData()
	data.View = v.id
	return data
}

// Mount starts the health and users fetches concurrently. Only the first
// call has any effect. Loading is already true when Mount returns.
func (v *View) Mount() bool {
	v.mu.Lock()
	if v.mounted || v.ctx.Err() != nil {
		v.mu.Unlock()
		return false
	}
	v.mounted = true
	v.mu.Unlock()

	startedUsers := v.beginUsers()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()

		var g errgroup.Group
		g.Go(func() error {
			v.fetchHealth()
			return nil
		})
		if startedUsers {
			g.Go(func() error {
				v.fetchUsers()
				return nil
			})
		}
		_ = g.Wait()
	}()

	return true
}

// Refresh re-runs the users fetch. It returns false without issuing a
// request when a users fetch is already in flight or the view is unmounted.
func (v *View) Refresh() bool {
	if !v.beginUsers() {
		v.deps.Metrics.RefreshIgnored()
		return false
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.fetchUsers()
	}()
	return true
}

// Unmount cancels every fetch tied to the view. It does not wait for them.
func (v *View) Unmount() {
	v.cancel()
}

func (v *View) Unmounted() bool {
	return v.ctx.Err() != nil
}

// Wait blocks until every fetch started so far has finished.
func (v *View) Wait() {
	v.wg.Wait()
}

func (v *View) Touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *View) LastSeen() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// beginUsers is the single-flight guard: the busy flag is tested and set
// under the lock, and only fetchUsers clears it.
func (v *View) beginUsers() bool {
	v.mu.Lock()
	if v.state.Loading || v.ctx.Err() != nil {
		v.mu.Unlock()
		return false
	}
	v.state.Loading = true
	v.state.Error = ""
	version := v.bump()
	v.mu.Unlock()

	v.changed(version)
	return true
}

func (v *View) fetchUsers() {
	var (
		users []api.User
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("users fetch panicked: %v", r)
		}
		v.finishUsers(users, err)
	}()

	users, err = v.deps.Fetcher.Users(v.ctx)
}

func (v *View) finishUsers(users []api.User, err error) {
	v.mu.Lock()
	v.state.Loading = false
	if v.ctx.Err() != nil {
		v.mu.Unlock()
		return
	}
	if err != nil {
		v.state.Error = usersErrorMessage(err)
	} else {
		if users == nil {
			users = []api.User{}
		}
		v.state.Users = users
	}
	version := v.bump()
	v.mu.Unlock()

	if err != nil {
		v.deps.Logger.Warn("users fetch failed", "view", v.id, "error", err)
	}
	v.changed(version)
}

func (v *View) fetchHealth() {
	health, err := v.deps.Fetcher.Health(v.ctx)
	if err != nil {
		if v.ctx.Err() == nil {
			v.deps.Logger.Warn("health check failed", "view", v.id, "error", err)
		}
		return
	}

	v.mu.Lock()
	if v.ctx.Err() != nil {
		v.mu.Unlock()
		return
	}
	v.state.Health = health
	version := v.bump()
	v.mu.Unlock()

	v.changed(version)
}

// bump advances the state version. Callers hold v.mu.
func (v *View) bump() uint64 {
	v.state.Version++
	return v.state.Version
}

func (v *View) changed(version uint64) {
	if v.deps.OnChange != nil {
		v.deps.OnChange(v.id, version)
	}
}

func usersErrorMessage(err error) string {
	if api.IsStatus(err) {
		return usersFailedMessage
	}
	return usersFailedMessage + ": " + err.Error()
}
