package player

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/services"
	"github.com/desertthunder/sift/internal/shared"
)

type playCall struct {
	deviceID string
	uris     []string
}

type fakeRemote struct {
	mu         sync.Mutex
	devices    [][]models.Device
	devicesErr error
	playErrs   []error
	plays      []playCall
	state      *models.PlaybackState
	stateErr   error
	polls      int
	pauses     int
	resumes    int
	transfers  []string
}

func (f *fakeRemote) Devices(ctx context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	if len(f.devices) == 0 {
		return nil, nil
	}
	d := f.devices[0]
	if len(f.devices) > 1 {
		f.devices = f.devices[1:]
	}
	return d, nil
}

func (f *fakeRemote) PlaybackState(ctx context.Context) (*models.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.state, f.stateErr
}

func (f *fakeRemote) Play(ctx context.Context, deviceID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, playCall{deviceID, uris})
	if len(f.playErrs) > 0 {
		err := f.playErrs[0]
		f.playErrs = f.playErrs[1:]
		return err
	}
	return nil
}

func (f *fakeRemote) Resume(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeRemote) Pause(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeRemote) Seek(ctx context.Context, deviceID string, positionMS int) error { return nil }

func (f *fakeRemote) Transfer(ctx context.Context, deviceID string, play bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, deviceID)
	return nil
}

func (f *fakeRemote) snapshot() ([]playCall, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playCall(nil), f.plays...), f.polls
}

func notFound() error {
	return &services.APIError{Status: http.StatusNotFound, Method: http.MethodPut, Endpoint: "/me/player/play"}
}

type fakeRuntime struct {
	events     chan Event
	onConnect  []Event
	connectErr error
	toggles    int
	mu         sync.Mutex
	closed     bool
}

func newFakeRuntime(onConnect ...Event) *fakeRuntime {
	return &fakeRuntime{events: make(chan Event, 8), onConnect: onConnect}
}

func (f *fakeRuntime) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	for _, ev := range f.onConnect {
		f.events <- ev
	}
	return nil
}

func (f *fakeRuntime) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRuntime) Events() <-chan Event { return f.events }

func (f *fakeRuntime) Toggle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return nil
}

func (f *fakeRuntime) Pause(ctx context.Context) error { return nil }
func (f *fakeRuntime) Resume(ctx context.Context) error { return nil }
func (f *fakeRuntime) Seek(ctx context.Context, pos int) error { return nil }
func (f *fakeRuntime) CurrentState(ctx context.Context) (*models.PlaybackState, error) {
	return nil, nil
}

func newTestReconciler(t *testing.T, remote Remote, opts ...Option) *Reconciler {
	t.Helper()
	base := []Option{
		WithTimings(50*time.Millisecond, time.Hour, time.Hour, time.Hour, time.Millisecond),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	}
	r := NewReconciler(remote, append(base, opts...)...)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("no runtime is remote only", func(t *testing.T) {
		r := newTestReconciler(t, &fakeRemote{})
		if mode := r.Init(ctx); mode != ModeRemoteOnly {
			t.Errorf("expected remote mode, got %v", mode)
		}
	})

	t.Run("ready event", func(t *testing.T) {
		r := newTestReconciler(t, &fakeRemote{}, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		if mode := r.Init(ctx); mode != ModeLocalReady || r.LocalDeviceID() != "local-1" {
			t.Errorf("expected local mode with id, got %v %q", mode, r.LocalDeviceID())
		}
	})

	t.Run("error event falls back", func(t *testing.T) {
		rt := newFakeRuntime(Failure{Type: EventAccountError, Message: "premium required"})
		r := newTestReconciler(t, &fakeRemote{}, WithRuntime(rt))
		if mode := r.Init(ctx); mode != ModeRemoteOnly {
			t.Errorf("expected remote mode, got %v", mode)
		}
		if !rt.closed {
			t.Error("expected runtime to be disconnected")
		}
	})

	t.Run("timeout falls back", func(t *testing.T) {
		r := newTestReconciler(t, &fakeRemote{}, WithRuntime(newFakeRuntime()))
		start := time.Now()
		if mode := r.Init(ctx); mode != ModeRemoteOnly {
			t.Errorf("expected remote mode, got %v", mode)
		}
		if time.Since(start) < 50*time.Millisecond {
			t.Error("expected Init to wait for the ready timeout")
		}
	})
}

func TestPlayTrack(t *testing.T) {
	ctx := context.Background()
	uri := "spotify:track:1"

	t.Run("active device gets no device id", func(t *testing.T) {
		remote := &fakeRemote{devices: [][]models.Device{{{ID: "phone", IsActive: true}}}}
		r := newTestReconciler(t, remote, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		plays, _ := remote.snapshot()
		if len(plays) != 1 || plays[0].deviceID != "" || plays[0].uris[0] != uri {
			t.Errorf("unexpected plays %+v", plays)
		}
	})

	t.Run("local device when nothing is active", func(t *testing.T) {
		remote := &fakeRemote{devices: [][]models.Device{{{ID: "local-1", Name: "sift"}}}}
		r := newTestReconciler(t, remote, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		plays, _ := remote.snapshot()
		if len(plays) != 1 || plays[0].deviceID != "local-1" {
			t.Errorf("unexpected plays %+v", plays)
		}
	})

	t.Run("stale local id recovers after one 404", func(t *testing.T) {
		remote := &fakeRemote{
			devices: [][]models.Device{
				{},
				{{ID: "local-2", Name: "sift"}},
			},
			playErrs: []error{notFound()},
		}
		r := newTestReconciler(t, remote, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		plays, _ := remote.snapshot()
		if len(plays) != 2 || plays[0].deviceID != "local-1" || plays[1].deviceID != "local-2" {
			t.Errorf("unexpected plays %+v", plays)
		}
		if r.LocalDeviceID() != "local-2" {
			t.Errorf("expected rediscovered id, got %q", r.LocalDeviceID())
		}
	})

	t.Run("local device still missing", func(t *testing.T) {
		remote := &fakeRemote{
			devices:  [][]models.Device{{}, {{ID: "local-2", Name: "sift"}}},
			playErrs: []error{notFound(), notFound()},
		}
		r := newTestReconciler(t, remote, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); !errors.Is(err, shared.ErrDeviceUnavailable) {
			t.Errorf("expected ErrDeviceUnavailable, got %v", err)
		}
	})

	t.Run("rediscovery finds nothing", func(t *testing.T) {
		remote := &fakeRemote{devices: [][]models.Device{{}}, playErrs: []error{notFound()}}
		r := newTestReconciler(t, remote, WithRuntime(newFakeRuntime(Ready{DeviceID: "local-1"})))
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); !errors.Is(err, shared.ErrDeviceUnavailable) {
			t.Errorf("expected ErrDeviceUnavailable, got %v", err)
		}
		plays, _ := remote.snapshot()
		if len(plays) != 1 {
			t.Errorf("expected no retry without a device, got %d plays", len(plays))
		}
	})

	t.Run("remote only with no device", func(t *testing.T) {
		remote := &fakeRemote{playErrs: []error{notFound()}}
		r := newTestReconciler(t, remote)
		r.Init(ctx)

		if err := r.PlayTrack(ctx, uri); !errors.Is(err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", err)
		}
	})

	t.Run("other failures are command errors", func(t *testing.T) {
		remote := &fakeRemote{playErrs: []error{&services.APIError{Status: http.StatusForbidden}}}
		r := newTestReconciler(t, remote)
		r.Init(ctx)

		err := r.PlayTrack(ctx, uri)
		if !errors.Is(err, shared.ErrPlaybackCommand) || !services.IsStatus(err, http.StatusForbidden) {
			t.Errorf("expected command error carrying 403, got %v", err)
		}
	})

	t.Run("auth errors pass through", func(t *testing.T) {
		remote := &fakeRemote{devicesErr: shared.ErrReauthenticationRequired}
		r := newTestReconciler(t, remote)
		r.Init(ctx)

		err := r.PlayTrack(ctx, uri)
		if !errors.Is(err, shared.ErrReauthenticationRequired) || errors.Is(err, shared.ErrDeviceDiscovery) {
			t.Errorf("expected bare auth error, got %v", err)
		}
	})

	t.Run("success polls and publishes state", func(t *testing.T) {
		states := make(chan models.PlaybackState, 8)
		remote := &fakeRemote{state: &models.PlaybackState{Track: &models.Track{ID: "1"}}}
		r := newTestReconciler(t, remote, WithStateFunc(func(s models.PlaybackState) { states <- s }))
		r.Init(ctx)
		<-states

		if err := r.PlayTrack(ctx, uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case s := <-states:
			if s.Track == nil || s.Track.ID != "1" {
				t.Errorf("unexpected state %+v", s)
			}
		case <-time.After(time.Second):
			t.Fatal("expected a poll after play")
		}
	})
}

func TestFastPollBurst(t *testing.T) {
	ctx := context.Background()
	states := make(chan models.PlaybackState, 64)
	remote := &fakeRemote{state: &models.PlaybackState{Track: &models.Track{ID: "1"}}}
	r := newTestReconciler(t, remote,
		WithTimings(50*time.Millisecond, time.Hour, 10*time.Millisecond, 60*time.Millisecond, time.Millisecond),
		WithStateFunc(func(s models.PlaybackState) {
			select {
			case states <- s:
			default:
			}
		}),
	)
	r.Init(ctx)
	<-states
	_, before := remote.snapshot()

	if err := r.PlayTrack(ctx, "spotify:track:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// burst is 60ms; allow the last fast timer to fire
	time.Sleep(150 * time.Millisecond)
	_, afterBurst := remote.snapshot()
	if afterBurst-before < 3 {
		t.Errorf("expected several polls during the burst, got %d", afterBurst-before)
	}

	time.Sleep(100 * time.Millisecond)
	if _, later := remote.snapshot(); later != afterBurst {
		t.Errorf("expected polling to return to the normal interval, got %d more polls", later-afterBurst)
	}
}

func TestLocalEvents(t *testing.T) {
	ctx := context.Background()
	states := make(chan models.PlaybackState, 8)
	rt := newFakeRuntime(Ready{DeviceID: "local-1"})
	remote := &fakeRemote{}
	r := newTestReconciler(t, remote, WithRuntime(rt), WithStateFunc(func(s models.PlaybackState) { states <- s }))
	r.Init(ctx)

	// initial poll
	<-states

	rt.events <- StateChanged{State: &models.PlaybackState{PositionMS: 10, Track: &models.Track{ID: "local"}}}
	select {
	case s := <-states:
		if s.Track == nil || s.Track.ID != "local" {
			t.Errorf("expected local state, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("expected local state")
	}

	if err := r.TogglePlay(ctx); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	rt.mu.Lock()
	toggles := rt.toggles
	rt.mu.Unlock()
	if toggles != 1 {
		t.Errorf("expected toggle delegated to runtime, got %d", toggles)
	}

	rt.events <- StateChanged{}
	select {
	case s := <-states:
		if s.Track != nil {
			t.Errorf("expected remote empty state after local stop, got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("expected polling to resume")
	}
}

func TestTogglePlay(t *testing.T) {
	ctx := context.Background()

	t.Run("no playback", func(t *testing.T) {
		r := newTestReconciler(t, &fakeRemote{})
		r.Init(ctx)
		if err := r.TogglePlay(ctx); !errors.Is(err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", err)
		}
	})

	t.Run("pauses playing state", func(t *testing.T) {
		remote := &fakeRemote{state: &models.PlaybackState{Paused: false}}
		r := newTestReconciler(t, remote)
		r.Init(ctx)
		if err := r.TogglePlay(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		remote.mu.Lock()
		defer remote.mu.Unlock()
		if remote.pauses != 1 || remote.resumes != 0 {
			t.Errorf("expected one pause, got pauses=%d resumes=%d", remote.pauses, remote.resumes)
		}
	})

	t.Run("resumes paused state", func(t *testing.T) {
		remote := &fakeRemote{state: &models.PlaybackState{Paused: true}}
		r := newTestReconciler(t, remote)
		r.Init(ctx)
		if err := r.TogglePlay(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		remote.mu.Lock()
		defer remote.mu.Unlock()
		if remote.resumes != 1 {
			t.Errorf("expected one resume, got %d", remote.resumes)
		}
	})
}

func TestTransferAndDevices(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{devices: [][]models.Device{{{ID: "d1"}, {ID: "d2"}}}}
	r := newTestReconciler(t, remote)
	r.Init(ctx)

	devices, err := r.Devices(ctx)
	if err != nil || len(devices) != 2 {
		t.Fatalf("unexpected devices %+v err=%v", devices, err)
	}
	if err := r.TransferPlayback(ctx, "d2", true); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if err := r.TransferPlayback(ctx, "", true); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}

	remote.mu.Lock()
	remote.devicesErr = errors.New("boom")
	remote.mu.Unlock()
	if _, err := r.Devices(ctx); !errors.Is(err, shared.ErrDeviceDiscovery) {
		t.Errorf("expected ErrDeviceDiscovery, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rt := newFakeRuntime(Ready{DeviceID: "x"})
	r := NewReconciler(&fakeRemote{}, WithRuntime(rt), WithTimings(50*time.Millisecond, time.Hour, time.Hour, time.Hour, 0))
	r.Init(context.Background())

	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if !rt.closed {
		t.Error("expected runtime disconnected")
	}
}
