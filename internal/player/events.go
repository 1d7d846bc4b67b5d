package player

import (
	"context"

	"github.com/desertthunder/sift/internal/models"
)

// Mode is the reconciler's view of the local device.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeLocalReady
	ModeRemoteOnly
)

func (m Mode) String() string {
	switch m {
	case ModeLocalReady:
		return "local"
	case ModeRemoteOnly:
		return "remote"
	default:
		return "uninitialized"
	}
}

// EventKind tags an [Event].
type EventKind int

const (
	EventReady EventKind = iota
	EventStateChanged
	EventInitializationError
	EventAuthenticationError
	EventAccountError
	EventPlaybackError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventStateChanged:
		return "state_changed"
	case EventInitializationError:
		return "initialization_error"
	case EventAuthenticationError:
		return "authentication_error"
	case EventAccountError:
		return "account_error"
	case EventPlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// Event is emitted by a [Runtime]. The concrete types are [Ready], [StateChanged] and [Failure].
type Event interface {
	Kind() EventKind
}

// Ready announces the device id the runtime registered.
type Ready struct {
	DeviceID string
}

func (Ready) Kind() EventKind { return EventReady }

// StateChanged carries local playback state. A nil State, or one without a track, means local playback stopped.
type StateChanged struct {
	State *models.PlaybackState
}

func (StateChanged) Kind() EventKind { return EventStateChanged }

// Failure reports one of the error kinds.
type Failure struct {
	Type    EventKind
	Message string
}

func (f Failure) Kind() EventKind { return f.Type }

func (f Failure) Error() string { return f.Type.String() + ": " + f.Message }

// Runtime is a local playback device.
type Runtime interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Events() <-chan Event
	Toggle(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMS int) error
	CurrentState(ctx context.Context) (*models.PlaybackState, error)
}

// Remote is the playback surface of the service, usually a [services.SpotifyClient].
type Remote interface {
	Devices(ctx context.Context) ([]models.Device, error)
	PlaybackState(ctx context.Context) (*models.PlaybackState, error)
	Play(ctx context.Context, deviceID string, uris []string) error
	Resume(ctx context.Context, deviceID string) error
	Pause(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, deviceID string, positionMS int) error
	Transfer(ctx context.Context, deviceID string, play bool) error
}

// StateFunc receives every normalized playback state.
type StateFunc func(models.PlaybackState)
