package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrUnauthenticated          = fmt.Errorf("not logged in")
	ErrReauthenticationRequired = fmt.Errorf("session expired, log in again")
	ErrAuthFailed               = fmt.Errorf("authentication failed")
	ErrTimeout                  = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrTransientService   = fmt.Errorf("service temporarily unavailable")
	ErrPermanentRequest   = fmt.Errorf("request rejected by service")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Storage errors. Quota failures are soft: the data that was being cached is still returned.
	ErrStorageQuotaExceeded = fmt.Errorf("local storage is full")
	ErrStorage              = fmt.Errorf("local storage error")

	// Playback errors
	ErrDeviceUnavailable = fmt.Errorf("playback device is not available, open Spotify on a device and try again")
	ErrNoActiveDevice    = fmt.Errorf("no active playback device, start Spotify on any device first")
	ErrDeviceDiscovery   = fmt.Errorf("could not list playback devices")
	ErrPlaybackCommand   = fmt.Errorf("playback command failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
