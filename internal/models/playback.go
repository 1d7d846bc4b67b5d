package models

// Device is an output device as listed by the service. Sift finds its own device by Name.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
	IsRestricted  bool   `json:"is_restricted"`
}

// PlaybackState is the normalized shape for both local runtime events and polled remote state.
//
// Track is nil when nothing is loaded.
type PlaybackState struct {
	Paused     bool   `json:"paused"`
	PositionMS int    `json:"position_ms"`
	DurationMS int    `json:"duration_ms"`
	Track      *Track `json:"track,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// HasActiveDevice reports whether any device in the list is active.
func HasActiveDevice(devices []Device) bool {
	for _, d := range devices {
		if d.IsActive {
			return true
		}
	}
	return false
}

// FindDeviceByName returns the first device whose name matches exactly.
func FindDeviceByName(devices []Device, name string) (Device, bool) {
	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}
