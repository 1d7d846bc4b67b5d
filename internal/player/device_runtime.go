package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/shared"
)

// DeviceRuntime is a [Runtime] for an external Connect receiver, such as librespot or spotifyd, registered under a known name.
//
// Connect watches the device list until the receiver shows up and then emits [Ready].
// After that it watches playback and emits [StateChanged] while the receiver is the playing device,
// and once with a nil state when it stops being so.
// Commands are sent through the service to the receiver's device id.
type DeviceRuntime struct {
	remote   Remote
	name     string
	interval time.Duration
	watch    time.Duration
	logger   *log.Logger

	events  chan Event
	stop    chan struct{}
	refresh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu       sync.Mutex
	deviceID string
}

// NewDeviceRuntime creates a runtime that looks for the device called name every interval.
// Playback is checked every four intervals once the device is found.
func NewDeviceRuntime(remote Remote, name string, interval time.Duration, logger *log.Logger) *DeviceRuntime {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = shared.WithLogger(log.Default(), "component", "device")
	}
	return &DeviceRuntime{
		remote:   remote,
		name:     name,
		interval: interval,
		watch:    4 * interval,
		logger:   logger,
		events:   make(chan Event, 8),
		stop:     make(chan struct{}),
		refresh:  make(chan struct{}, 1),
	}
}

func (d *DeviceRuntime) Events() <-chan Event { return d.events }

// Connect starts discovery in the background. The result arrives as an event.
func (d *DeviceRuntime) Connect(ctx context.Context) error {
	if d.name == "" {
		return errors.New("device name is empty")
	}

	d.wg.Add(1)
	go d.discover(ctx)
	return nil
}

func (d *DeviceRuntime) discover(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		devices, err := d.remote.Devices(ctx)
		switch {
		case isAuthError(err):
			d.emit(Failure{Type: EventAuthenticationError, Message: err.Error()})
			return
		case err != nil:
			d.logger.Debug("device discovery failed", "error", err)
		default:
			if dev, ok := models.FindDeviceByName(devices, d.name); ok && dev.ID != "" {
				if dev.IsRestricted {
					d.emit(Failure{Type: EventAccountError, Message: "device " + d.name + " does not accept remote commands"})
					return
				}
				d.mu.Lock()
				d.deviceID = dev.ID
				d.mu.Unlock()
				d.emit(Ready{DeviceID: dev.ID})
				d.watchPlayback(ctx)
				return
			}
		}

		select {
		case <-ctx.Done():
			d.emit(Failure{Type: EventInitializationError, Message: ctx.Err().Error()})
			return
		case <-d.stop:
			return
		case <-ticker.C:
		}
	}
}

// watchPlayback reports receiver playback until the runtime stops, ctx ends or authentication fails.
func (d *DeviceRuntime) watchPlayback(ctx context.Context) {
	ticker := time.NewTicker(d.watch)
	defer ticker.Stop()

	live := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-d.refresh:
		case <-ticker.C:
		}

		state, err := d.CurrentState(ctx)
		switch {
		case isAuthError(err):
			d.emit(Failure{Type: EventAuthenticationError, Message: err.Error()})
			return
		case err != nil:
			d.logger.Debug("receiver state check failed", "error", err)
		case state != nil:
			live = true
			d.emit(StateChanged{State: state})
		case live:
			live = false
			d.emit(StateChanged{})
		}
	}
}

// poke asks the watcher to check playback now.
func (d *DeviceRuntime) poke() {
	select {
	case d.refresh <- struct{}{}:
	default:
	}
}

func (d *DeviceRuntime) emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.stop:
	}
}

// Disconnect stops discovery and closes the event channel.
func (d *DeviceRuntime) Disconnect() error {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
		close(d.events)
	})
	return nil
}

func (d *DeviceRuntime) id() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deviceID == "" {
		return "", shared.ErrDeviceUnavailable
	}
	return d.deviceID, nil
}

// Toggle pauses or resumes the receiver based on its current state.
func (d *DeviceRuntime) Toggle(ctx context.Context) error {
	state, err := d.CurrentState(ctx)
	if err != nil {
		return err
	}
	if state == nil || state.Paused {
		return d.Resume(ctx)
	}
	return d.Pause(ctx)
}

func (d *DeviceRuntime) Pause(ctx context.Context) error {
	id, err := d.id()
	if err != nil {
		return err
	}
	if err := d.remote.Pause(ctx, id); err != nil {
		return err
	}
	d.poke()
	return nil
}

func (d *DeviceRuntime) Resume(ctx context.Context) error {
	id, err := d.id()
	if err != nil {
		return err
	}
	if err := d.remote.Resume(ctx, id); err != nil {
		return err
	}
	d.poke()
	return nil
}

func (d *DeviceRuntime) Seek(ctx context.Context, positionMS int) error {
	id, err := d.id()
	if err != nil {
		return err
	}
	if err := d.remote.Seek(ctx, id, positionMS); err != nil {
		return err
	}
	d.poke()
	return nil
}

// CurrentState returns playback state when the receiver is the playing device, or nil otherwise.
func (d *DeviceRuntime) CurrentState(ctx context.Context) (*models.PlaybackState, error) {
	id, err := d.id()
	if err != nil {
		return nil, err
	}
	state, err := d.remote.PlaybackState(ctx)
	if err != nil || state == nil || state.DeviceID != id {
		return nil, err
	}
	return state, nil
}
