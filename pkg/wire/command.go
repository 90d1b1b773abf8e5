package wire

import "fmt"

// Command types accepted by a zone or virtual button command processor.
const (
	CommandGoToLevel         = "GoToLevel"
	CommandGoToSwitchedLevel = "GoToSwitchedLevel"
	CommandPressAndRelease   = "PressAndRelease"
)

// CommandParameter is a single typed parameter of a command.
type CommandParameter struct {
	Type  string `json:"Type"`
	Value any    `json:"Value"`
}

// Command is sent to a "/.../commandprocessor" URL to change state.
type Command struct {
	CommandType string             `json:"CommandType"`
	Parameter   []CommandParameter `json:"Parameter,omitempty"`
}

// CommandBody wraps a command for transmission.
type CommandBody struct {
	Command Command `json:"Command"`
}

// ZoneCommandURL returns the command processor URL for a zone.
func ZoneCommandURL(zoneID string) string {
	return fmt.Sprintf("/zone/%s/commandprocessor", zoneID)
}

// ZoneStatusURL returns the status URL for a zone.
func ZoneStatusURL(zoneID string) string {
	return fmt.Sprintf("/zone/%s/status", zoneID)
}

// SceneCommandURL returns the command processor URL for a virtual button.
func SceneCommandURL(sceneID string) string {
	return fmt.Sprintf("/virtualbutton/%s/commandprocessor", sceneID)
}

// GoToLevelBody builds the command body setting a dimmable zone to the
// given level (0-100).
func GoToLevelBody(level int) CommandBody {
	return CommandBody{Command: Command{
		CommandType: CommandGoToLevel,
		Parameter: []CommandParameter{
			{Type: "Level", Value: level},
		},
	}}
}

// GoToSwitchedLevelBody builds the command body switching a
// non-dimmable zone on or off.
func GoToSwitchedLevelBody(on bool) CommandBody {
	level := SwitchedLevelOff
	if on {
		level = SwitchedLevelOn
	}
	return CommandBody{Command: Command{
		CommandType: CommandGoToSwitchedLevel,
		Parameter: []CommandParameter{
			{Type: "SwitchedLevel", Value: level},
		},
	}}
}

// PressAndReleaseBody builds the command body activating a scene.
func PressAndReleaseBody() CommandBody {
	return CommandBody{Command: Command{
		CommandType: CommandPressAndRelease,
	}}
}
