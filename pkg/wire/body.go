package wire

import "strings"

// Href is a reference to a bridge resource, e.g. {"href": "/zone/17"}.
type Href struct {
	Href string `json:"href"`
}

// ID returns the trailing path segment of the href, which is the
// resource identifier ("17" for "/zone/17"). Returns "" for an empty
// href.
func (h Href) ID() string {
	if h.Href == "" {
		return ""
	}
	trimmed := strings.TrimSuffix(h.Href, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Device is a bridge device record from "/device".
type Device struct {
	Href               Href     `json:"href"`
	Name               string   `json:"Name"`
	FullyQualifiedName []string `json:"FullyQualifiedName,omitempty"`
	DeviceType         string   `json:"DeviceType"`
	ModelNumber        string   `json:"ModelNumber,omitempty"`
	SerialNumber       any      `json:"SerialNumber,omitempty"`
	LocalZones         []Href   `json:"LocalZones,omitempty"`
}

// DisplayName returns the human-readable device name, preferring the
// fully qualified form ("Kitchen Pendants" over "Pendants").
func (d Device) DisplayName() string {
	if len(d.FullyQualifiedName) > 0 {
		return strings.Join(d.FullyQualifiedName, " ")
	}
	return d.Name
}

// VirtualButton is a scene record from "/virtualbutton".
type VirtualButton struct {
	Href         Href   `json:"href"`
	Name         string `json:"Name"`
	ButtonNumber int    `json:"ButtonNumber,omitempty"`
	IsProgrammed bool   `json:"IsProgrammed,omitempty"`
}

// ZoneStatus reports the current state of a zone. Dimmable zones
// populate Level (0-100); switched zones populate SwitchedLevel
// ("On"/"Off").
type ZoneStatus struct {
	Href           Href   `json:"href"`
	Zone           Href   `json:"Zone"`
	Level          *int   `json:"Level,omitempty"`
	SwitchedLevel  string `json:"SwitchedLevel,omitempty"`
	StatusAccuracy string `json:"StatusAccuracy,omitempty"`
}

// Switched-level wire values.
const (
	SwitchedLevelOn  = "On"
	SwitchedLevelOff = "Off"
)

// Typed response bodies, keyed the way the bridge keys them.
type (
	// DevicesBody is the body of a "/device" read response.
	DevicesBody struct {
		Devices []Device `json:"Devices"`
	}

	// VirtualButtonsBody is the body of a "/virtualbutton" read response.
	VirtualButtonsBody struct {
		VirtualButtons []VirtualButton `json:"VirtualButtons"`
	}

	// ZoneStatusBody is the body of a zone status response or event.
	ZoneStatusBody struct {
		ZoneStatus ZoneStatus `json:"ZoneStatus"`
	}

	// MultipleZoneStatusBody is the body of a "/zone/status" read
	// response covering every zone.
	MultipleZoneStatusBody struct {
		ZoneStatus []ZoneStatus `json:"ZoneStatus"`
	}
)
