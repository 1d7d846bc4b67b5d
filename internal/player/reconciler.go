package player

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/services"
	"github.com/desertthunder/sift/internal/shared"
)

const (
	DefaultDeviceName       = "sift"
	DefaultReadyTimeout     = 5 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultFastPollInterval = time.Second
	DefaultFastPollDuration = 6 * time.Second
	DefaultRetryDelay       = time.Second
)

// Reconciler routes playback commands to a device and publishes playback state.
type Reconciler struct {
	remote  Remote
	runtime Runtime
	onState StateFunc
	logger  *log.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	deviceName   string
	readyTimeout time.Duration
	pollInterval time.Duration
	fastInterval time.Duration
	fastDuration time.Duration
	retryDelay   time.Duration

	mu        sync.Mutex
	mode      Mode
	localID   string
	liveLocal bool
	fast      bool
	fastTimer *time.Timer

	pollNow   chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a [Reconciler].
type Option func(*Reconciler)

// WithRuntime attaches a local device runtime.
func WithRuntime(rt Runtime) Option {
	return func(r *Reconciler) { r.runtime = rt }
}

// WithStateFunc sets the state callback.
func WithStateFunc(fn StateFunc) Option {
	return func(r *Reconciler) { r.onState = fn }
}

func WithDeviceName(name string) Option {
	return func(r *Reconciler) {
		if name != "" {
			r.deviceName = name
		}
	}
}

// WithTimings overrides the ready timeout, poll intervals and device retry delay. Zero values keep defaults.
func WithTimings(readyTimeout, pollInterval, fastInterval, fastDuration, retryDelay time.Duration) Option {
	return func(r *Reconciler) {
		set := func(dst *time.Duration, v time.Duration) {
			if v > 0 {
				*dst = v
			}
		}
		set(&r.readyTimeout, readyTimeout)
		set(&r.pollInterval, pollInterval)
		set(&r.fastInterval, fastInterval)
		set(&r.fastDuration, fastDuration)
		set(&r.retryDelay, retryDelay)
	}
}

// WithSleep replaces the wait before retrying a rediscovered device.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = sleep }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a Reconciler. Call [Reconciler.Init] before issuing commands.
func NewReconciler(remote Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote:       remote,
		logger:       shared.WithLogger(log.Default(), "component", "player"),
		sleep:        sleepContext,
		deviceName:   DefaultDeviceName,
		readyTimeout: DefaultReadyTimeout,
		pollInterval: DefaultPollInterval,
		fastInterval: DefaultFastPollInterval,
		fastDuration: DefaultFastPollDuration,
		retryDelay:   DefaultRetryDelay,
		pollNow:      make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the current mode.
func (r *Reconciler) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// LocalDeviceID returns the id announced by the runtime, if any.
func (r *Reconciler) LocalDeviceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localID
}

// Init connects the runtime and waits for it to become ready. Failure to do so falls back to remote-only mode.
//
// Polling starts in either case.
func (r *Reconciler) Init(ctx context.Context) Mode {
	mode := ModeRemoteOnly
	if r.runtime != nil {
		if id, err := r.connectRuntime(ctx); err != nil {
			r.logger.Warn("local player unavailable, using remote devices", "error", err)
			if derr := r.runtime.Disconnect(); derr != nil {
				r.logger.Debug("runtime disconnect failed", "error", derr)
			}
			r.runtime = nil
		} else {
			mode = ModeLocalReady
			r.mu.Lock()
			r.localID = id
			r.mu.Unlock()
			r.logger.Info("local player ready", "device", r.deviceName, "id", id)

			r.wg.Add(1)
			go r.consumeEvents(r.runtime.Events())
		}
	}

	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pollLoop()
	r.nudge()
	return mode
}

func (r *Reconciler) connectRuntime(ctx context.Context) (string, error) {
	events := r.runtime.Events()
	if err := r.runtime.Connect(ctx); err != nil {
		return "", err
	}

	timer := time.NewTimer(r.readyTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", fmt.Errorf("device %q not ready after %v", r.deviceName, r.readyTimeout)
		case ev, ok := <-events:
			if !ok {
				return "", errors.New("runtime closed before ready")
			}
			switch e := ev.(type) {
			case Ready:
				return e.DeviceID, nil
			case Failure:
				return "", e
			}
		}
	}
}

func (r *Reconciler) consumeEvents(events <-chan Event) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ev)
		}
	}
}

func (r *Reconciler) handleEvent(ev Event) {
	switch e := ev.(type) {
	case Ready:
		r.mu.Lock()
		r.localID = e.DeviceID
		r.mode = ModeLocalReady
		r.mu.Unlock()
	case StateChanged:
		live := e.State != nil && e.State.Track != nil
		r.mu.Lock()
		r.liveLocal = live
		r.mu.Unlock()
		if live {
			r.publish(*e.State)
		} else {
			r.nudge()
		}
	case Failure:
		r.logger.Warn("local player error", "kind", e.Type, "message", e.Message)
	}
}

func (r *Reconciler) publish(state models.PlaybackState) {
	if r.onState != nil {
		r.onState(state)
	}
}

func (r *Reconciler) nudge() {
	select {
	case r.pollNow <- struct{}{}:
	default:
	}
}

func (r *Reconciler) interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fast {
		return r.fastInterval
	}
	return r.pollInterval
}

func (r *Reconciler) pollLoop() {
	defer r.wg.Done()
	for {
		timer := time.NewTimer(r.interval())
		select {
		case <-r.stop:
			timer.Stop()
			return
		case <-r.pollNow:
		case <-timer.C:
		}
		timer.Stop()
		r.poll()
	}
}

// poll reads remote state unless the runtime is reporting live playback. Errors are logged and polling continues.
func (r *Reconciler) poll() {
	r.mu.Lock()
	live := r.liveLocal
	r.mu.Unlock()
	if live {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := r.remote.PlaybackState(ctx)
	if err != nil {
		r.logger.Debug("playback poll failed", "error", err)
		return
	}
	if state == nil {
		state = &models.PlaybackState{Paused: true}
	}
	r.publish(*state)
}

// fastPoll polls now and keeps the fast interval until the burst timer fires.
func (r *Reconciler) fastPoll() {
	r.mu.Lock()
	r.fast = true
	if r.fastTimer != nil {
		r.fastTimer.Stop()
	}
	r.fastTimer = time.AfterFunc(r.fastDuration, func() {
		r.mu.Lock()
		r.fast = false
		r.mu.Unlock()
	})
	r.mu.Unlock()
	r.nudge()
}

// PlayTrack starts uri on the best available device.
func (r *Reconciler) PlayTrack(ctx context.Context, uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: track uri", shared.ErrMissingArgument)
	}
	uris := []string{uri}

	devices, err := r.remote.Devices(ctx)
	if err != nil {
		return discoveryError(err)
	}

	r.mu.Lock()
	mode, localID := r.mode, r.localID
	r.mu.Unlock()

	switch {
	case models.HasActiveDevice(devices):
		if err := r.remote.Play(ctx, "", uris); err != nil {
			return commandError(err)
		}
	case mode == ModeLocalReady && localID != "":
		if err := r.playLocal(ctx, localID, uris); err != nil {
			return err
		}
	default:
		err := r.remote.Play(ctx, "", uris)
		if services.IsStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: start playback on another device first", shared.ErrNoActiveDevice)
		}
		if err != nil {
			return commandError(err)
		}
	}

	r.fastPoll()
	return nil
}

// playLocal plays on the local device, rediscovering it by name once if the service no longer knows its id.
func (r *Reconciler) playLocal(ctx context.Context, localID string, uris []string) error {
	err := r.remote.Play(ctx, localID, uris)
	if err == nil {
		return nil
	}
	if !services.IsStatus(err, http.StatusNotFound) {
		return commandError(err)
	}

	r.logger.Info("local device not found, rediscovering", "device", r.deviceName, "id", localID)
	id, derr := r.rediscover(ctx)
	if derr != nil {
		if isAuthError(derr) {
			return derr
		}
		return fmt.Errorf("%w: %w", shared.ErrDeviceUnavailable, derr)
	}

	if err := r.sleep(ctx, r.retryDelay); err != nil {
		return err
	}
	if err := r.remote.Play(ctx, id, uris); err != nil {
		if isAuthError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", shared.ErrDeviceUnavailable, err)
	}
	return nil
}

func (r *Reconciler) rediscover(ctx context.Context) (string, error) {
	devices, err := r.remote.Devices(ctx)
	if err != nil {
		return "", err
	}
	d, ok := models.FindDeviceByName(devices, r.deviceName)
	if !ok || d.ID == "" {
		return "", fmt.Errorf("%w: no device named %q", shared.ErrDeviceDiscovery, r.deviceName)
	}

	r.mu.Lock()
	r.localID = d.ID
	r.mu.Unlock()
	return d.ID, nil
}

// TogglePlay pauses or resumes whatever is playing.
func (r *Reconciler) TogglePlay(ctx context.Context) error {
	r.mu.Lock()
	live := r.liveLocal
	r.mu.Unlock()

	if live && r.runtime != nil {
		if err := r.runtime.Toggle(ctx); err != nil {
			return commandError(err)
		}
		return nil
	}

	state, err := r.remote.PlaybackState(ctx)
	if err != nil {
		return commandError(err)
	}
	if state == nil {
		return shared.ErrNoActiveDevice
	}

	if state.Paused {
		err = r.remote.Resume(ctx, "")
	} else {
		err = r.remote.Pause(ctx, "")
	}
	if services.IsStatus(err, http.StatusNotFound) {
		return shared.ErrNoActiveDevice
	}
	if err != nil {
		return commandError(err)
	}

	r.nudge()
	return nil
}

// TransferPlayback moves playback to deviceID.
func (r *Reconciler) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}

	err := r.remote.Transfer(ctx, deviceID, play)
	if services.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrDeviceUnavailable, deviceID)
	}
	if err != nil {
		return commandError(err)
	}

	r.fastPoll()
	return nil
}

// Devices lists the available devices.
func (r *Reconciler) Devices(ctx context.Context) ([]models.Device, error) {
	devices, err := r.remote.Devices(ctx)
	if err != nil {
		return nil, discoveryError(err)
	}
	return devices, nil
}

// Close stops polling and disconnects the runtime. It is safe to call more than once.
func (r *Reconciler) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)

		r.mu.Lock()
		if r.fastTimer != nil {
			r.fastTimer.Stop()
		}
		r.mu.Unlock()

		if r.runtime != nil {
			err = r.runtime.Disconnect()
		}
		r.wg.Wait()
	})
	return err
}

func isAuthError(err error) bool {
	return errors.Is(err, shared.ErrUnauthenticated) || errors.Is(err, shared.ErrReauthenticationRequired)
}

func commandError(err error) error {
	if isAuthError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrPlaybackCommand, err)
}

func discoveryError(err error) error {
	if isAuthError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrDeviceDiscovery, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
