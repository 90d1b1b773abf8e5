package catalog

import "strings"

// Kind classifies a device by how its state is controlled.
type Kind string

const (
	// KindDimmer devices carry a 0-100 brightness level.
	KindDimmer Kind = "dimmer"
	// KindSwitch devices are binary on/off.
	KindSwitch Kind = "switch"
	// KindFan devices expose discrete fan speeds through a level.
	KindFan Kind = "fan"
	// KindBridge is the bridge's own device record.
	KindBridge Kind = "bridge"
	// KindUnknown covers device types without a controllable zone
	// (remotes, sensors).
	KindUnknown Kind = "unknown"
)

// classifyDeviceType maps a LEAP DeviceType string to a Kind.
func classifyDeviceType(deviceType string) Kind {
	switch {
	case strings.HasPrefix(deviceType, "SmartBridge"):
		return KindBridge
	case strings.Contains(deviceType, "Dimmer"):
		return KindDimmer
	case strings.Contains(deviceType, "Switch"):
		return KindSwitch
	case strings.Contains(deviceType, "FanSpeed"):
		return KindFan
	default:
		return KindUnknown
	}
}

// State is the last-known state of a device.
type State struct {
	// On reports whether the device is powered on.
	On bool
	// Level is the brightness or speed level (0-100). Always zero
	// for switched devices that are off.
	Level int
}

// Device is a cached device record.
type Device struct {
	// ID is the bridge-assigned device identifier.
	ID string
	// Name is the human-readable name (fully qualified when the
	// bridge provides one).
	Name string
	// Kind classifies how the device is controlled.
	Kind Kind
	// ZoneID is the controllable zone backing this device.
	ZoneID string
	// State is the last-known state.
	State State
}

// Scene is a cached virtual button record.
type Scene struct {
	// ID is the bridge-assigned virtual button identifier.
	ID string
	// Name is the programmed scene name.
	Name string
}
