package actuator

import (
	"encoding/json"
	"strings"
)

// DeviceEventKind classifies a line reported by the door device.
type DeviceEventKind int

// Device event kinds.
const (
	// EventMoving means the servo started travelling towards Target.
	EventMoving DeviceEventKind = iota + 1

	// EventDetached means the servo finished travelling and was released.
	EventDetached
)

// Movement targets reported with EventMoving.
const (
	TargetOpen  = "open"
	TargetClose = "close"
)

// DeviceEvent is a decoded device feed line.
type DeviceEvent struct {
	Kind   DeviceEventKind
	Target string
}

type deviceLine struct {
	Bambi  string `json:"bambi"`
	Target string `json:"target"`
	Status string `json:"status"`
}

// ParseDeviceEvent decodes one line of the device feed.
//
// Lines that are not JSON or carry no recognised event return false.
func ParseDeviceEvent(line string) (DeviceEvent, bool) {
	var l deviceLine
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &l); err != nil {
		return DeviceEvent{}, false
	}

	switch {
	case l.Bambi == "moving":
		target := strings.ToLower(l.Target)
		if target != TargetOpen && target != TargetClose {
			return DeviceEvent{}, false
		}
		return DeviceEvent{Kind: EventMoving, Target: target}, true
	case l.Status == "detached_soft":
		return DeviceEvent{Kind: EventDetached}, true
	default:
		return DeviceEvent{}, false
	}
}
