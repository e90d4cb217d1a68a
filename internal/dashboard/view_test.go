package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brattlof/userboard/internal/api"
)

var (
	ann = api.User{ID: 1, Name: "Ann", Email: "a@x.com", Age: 30, Country: "US", CreatedAt: "2024-01-01"}
	bob = api.User{ID: 2, Name: "Bob", Email: "b@x.com", Age: 41, Country: "UK", CreatedAt: "2023-05-02"}
)

type fakeFetcher struct {
	usersCalls  atomic.Int32
	healthCalls atomic.Int32

	mu       sync.Mutex
	usersFn  func(ctx context.Context) ([]api.User, error)
	healthFn func(ctx context.Context) (*api.Health, error)
}

func (f *fakeFetcher) setUsers(fn func(ctx context.Context) ([]api.User, error)) {
	f.mu.Lock()
	f.usersFn = fn
	f.mu.Unlock()
}

func (f *fakeFetcher) Users(ctx context.Context) ([]api.User, error) {
	f.usersCalls.Add(1)
	f.mu.Lock()
	fn := f.usersFn
	f.mu.Unlock()
	if fn == nil {
		return []api.User{}, nil
	}
	return fn(ctx)
}

func (f *fakeFetcher) Health(ctx context.Context) (*api.Health, error) {
	f.healthCalls.Add(1)
	f.mu.Lock()
	fn := f.healthFn
	f.mu.Unlock()
	if fn == nil {
		return &api.Health{Status: "healthy", Uptime: "1m"}, nil
	}
	return fn(ctx)
}

func returnUsers(users ...api.User) func(context.Context) ([]api.User, error) {
	return func(context.Context) ([]api.User, error) { return users, nil }
}

func failUsers(err error) func(context.Context) ([]api.User, error) {
	return func(context.Context) ([]api.User, error) { return nil, err }
}

// gatedUsers blocks until gate is closed, ignoring cancellation so tests can
// deliver a result after the view is gone.
func gatedUsers(gate <-chan struct{}, users ...api.User) func(context.Context) ([]api.User, error) {
	return func(context.Context) ([]api.User, error) {
		<-gate
		return users, nil
	}
}

type countingRecorder struct {
	ignored atomic.Int32
	active  atomic.Int32
	evicted atomic.Int32
}

func (r *countingRecorder) RefreshIgnored()      { r.ignored.Add(1) }
func (r *countingRecorder) SetViewsActive(n int) { r.active.Store(int32(n)) }
func (r *countingRecorder) ViewEvicted()         { r.evicted.Add(1) }

func newTestView(f *fakeFetcher, onChange func(string, uint64)) (*View, *countingRecorder) {
	rec := &countingRecorder{}
	v := NewView("test", Deps{
		Fetcher:  f,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  rec,
		OnChange: onChange,
	})
	return v, rec
}

func TestView_MountLoadsUsersAndHealth(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers(ann))
	v, _ := newTestView(f, nil)

	require.True(t, v.Mount())
	v.Wait()

	s := v.Snapshot()
	assert.Equal(t, []api.User{ann}, s.Users)
	assert.Equal(t, &api.Health{Status: "healthy", Uptime: "1m"}, s.Health)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Error)
	assert.Equal(t, int32(1), f.usersCalls.Load())
	assert.Equal(t, int32(1), f.healthCalls.Load())
}

func TestView_MountOnlyOnce(t *testing.T) {
	f := &fakeFetcher{}
	v, _ := newTestView(f, nil)

	require.True(t, v.Mount())
	v.Wait()
	assert.False(t, v.Mount())
	v.Wait()

	assert.Equal(t, int32(1), f.usersCalls.Load())
	assert.Equal(t, int32(1), f.healthCalls.Load())
}

func TestView_LoadingWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(gatedUsers(gate, ann))
	v, _ := newTestView(f, nil)

	v.Mount()
	assert.True(t, v.Snapshot().Loading)

	close(gate)
	v.Wait()
	assert.False(t, v.Snapshot().Loading)
}

func TestView_EmptyUsersWhenNil(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers())
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	s := v.Snapshot()
	assert.NotNil(t, s.Users)
	assert.Empty(t, s.Users)
	assert.Empty(t, s.Error)
}

func TestView_UsersFailureKeepsPreviousUsers(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers(ann, bob))
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	f.setUsers(failUsers(&api.StatusError{Endpoint: api.UsersPath, Code: 500}))
	require.True(t, v.Refresh())
	v.Wait()

	s := v.Snapshot()
	assert.Equal(t, "Failed to fetch users", s.Error)
	assert.Equal(t, []api.User{ann, bob}, s.Users)
	assert.False(t, s.Loading)
}

func TestView_TransportFailureMessage(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(failUsers(fmt.Errorf("get %s: %w", api.UsersPath, errors.New("connection refused"))))
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	s := v.Snapshot()
	assert.Equal(t, "Failed to fetch users: get /api/v1/users: connection refused", s.Error)
	assert.False(t, s.Loading)
}

func TestView_RefreshClearsError(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(failUsers(errors.New("down")))
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()
	require.NotEmpty(t, v.Snapshot().Error)

	f.setUsers(gatedUsers(gate, ann))
	require.True(t, v.Refresh())

	s := v.Snapshot()
	assert.True(t, s.Loading)
	assert.Empty(t, s.Error)

	close(gate)
	v.Wait()
	assert.Equal(t, []api.User{ann}, v.Snapshot().Users)
}

func TestView_HealthFailureIsSilent(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers(ann))
	f.healthFn = func(context.Context) (*api.Health, error) {
		return nil, &api.StatusError{Endpoint: api.HealthPath, Code: 500}
	}
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	s := v.Snapshot()
	assert.Nil(t, s.Health)
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
	assert.Equal(t, []api.User{ann}, s.Users)
}

func TestView_HealthFailureDoesNotTouchLoading(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(gatedUsers(gate, ann))
	f.healthFn = func(context.Context) (*api.Health, error) {
		return nil, errors.New("unreachable")
	}
	v, _ := newTestView(f, nil)

	v.Mount()
	require.Eventually(t, func() bool { return f.healthCalls.Load() == 1 }, time.Second, time.Millisecond)

	s := v.Snapshot()
	assert.True(t, s.Loading)
	assert.Empty(t, s.Error)

	close(gate)
	v.Wait()
}

func TestView_RefreshWhileBusyIsIgnored(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(gatedUsers(gate, ann))
	v, rec := newTestView(f, nil)

	v.Mount()
	assert.False(t, v.Refresh())
	assert.False(t, v.Refresh())

	close(gate)
	v.Wait()

	assert.Equal(t, int32(1), f.usersCalls.Load())
	assert.Equal(t, int32(2), rec.ignored.Load())

	assert.True(t, v.Refresh())
	v.Wait()
	assert.Equal(t, int32(2), f.usersCalls.Load())
}

func TestView_UnmountDiscardsLateResults(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(gatedUsers(gate, ann))
	healthGate := make(chan struct{})
	f.healthFn = func(context.Context) (*api.Health, error) {
		<-healthGate
		return &api.Health{Status: "healthy"}, nil
	}

	var changes atomic.Int32
	v, _ := newTestView(f, func(string, uint64) { changes.Add(1) })

	v.Mount()
	before := changes.Load()

	v.Unmount()
	close(gate)
	close(healthGate)
	v.Wait()

	s := v.Snapshot()
	assert.Nil(t, s.Users)
	assert.Nil(t, s.Health)
	assert.False(t, s.Loading)
	assert.Equal(t, before, changes.Load())

	assert.True(t, v.Unmounted())
	assert.False(t, v.Refresh())
	assert.False(t, v.Mount())
}

func TestView_UnmountCancelsRequests(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(func(ctx context.Context) ([]api.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Unmount()
	v.Wait()

	s := v.Snapshot()
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
}

func TestView_PanicReleasesGuard(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(func(context.Context) ([]api.User, error) {
		panic("boom")
	})
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	s := v.Snapshot()
	assert.False(t, s.Loading)
	assert.Contains(t, s.Error, "panicked")
}

func TestView_NotifiesOnChange(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers(ann))

	var mu sync.Mutex
	var ids []string
	var versions []uint64
	v, _ := newTestView(f, func(id string, version uint64) {
		mu.Lock()
		ids = append(ids, id)
		versions = append(versions, version)
		mu.Unlock()
	})

	v.Mount()
	v.Wait()

	mu.Lock()
	defer mu.Unlock()
	// loading started, users applied, health applied
	assert.Len(t, ids, 3)
	for _, id := range ids {
		assert.Equal(t, "test", id)
	}
	assert.ElementsMatch(t, []uint64{1, 2, 3}, versions)
	assert.Equal(t, uint64(3), v.Snapshot().Version)
}

func TestView_VersionOrdersLoadingBeforeResult(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFetcher{}
	f.setUsers(gatedUsers(gate, ann))
	f.healthFn = func(context.Context) (*api.Health, error) { return nil, errors.New("down") }
	v, _ := newTestView(f, nil)

	v.Mount()
	loading := v.ViewData()
	assert.True(t, loading.Loading)
	assert.Equal(t, "test", loading.View)

	close(gate)
	v.Wait()

	done := v.ViewData()
	assert.False(t, done.Loading)
	assert.Greater(t, done.Version, loading.Version)
}

func TestView_SnapshotIsACopy(t *testing.T) {
	f := &fakeFetcher{}
	f.setUsers(returnUsers(ann))
	v, _ := newTestView(f, nil)

	v.Mount()
	v.Wait()

	s := v.Snapshot()
	s.Users[0].Name = "changed"
	s.Health.Status = "changed"

	fresh := v.Snapshot()
	assert.Equal(t, "Ann", fresh.Users[0].Name)
	assert.Equal(t, "healthy", fresh.Health.Status)
}
