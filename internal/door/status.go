package door

import "github.com/nerrad567/bambi-core/internal/actuator"

// Position is the physical door position reported by the device feed.
type Position string

// Door positions.
const (
	PositionUnknown Position = "unknown"
	PositionOpening Position = "opening"
	PositionClosing Position = "closing"
	PositionOpen    Position = "open"
	PositionClosed  Position = "closed"
)

// Next applies a device event to p.
//
// A detach while not moving leaves the position unchanged.
func (p Position) Next(ev actuator.DeviceEvent) Position {
	switch ev.Kind {
	case actuator.EventMoving:
		if ev.Target == actuator.TargetOpen {
			return PositionOpening
		}
		return PositionClosing
	case actuator.EventDetached:
		switch p {
		case PositionOpening:
			return PositionOpen
		case PositionClosing:
			return PositionClosed
		}
	}
	return p
}

// Status is the read-only view pushed to status sinks.
type Status struct {
	CurrentTemp      float64  `json:"current_temp"`
	TargetTemp       float64  `json:"target_temp"`
	Percent          int      `json:"percent"`
	Status           string   `json:"status"`
	IsDoorOpen       bool     `json:"is_door_open"`
	IsWaitingToClose bool     `json:"is_waiting_to_close"`
	PrintedParts     int64    `json:"printed_parts"`
	Phase            Phase    `json:"phase"`
	DoorPosition     Position `json:"door_position"`
	LinkConnected    bool     `json:"link_connected"`
	PrinterConnected bool     `json:"printer_connected"`
	BotRunning       bool     `json:"bot_running"`
	ActiveProfile    string   `json:"active_profile,omitempty"`
}

// StatusSink receives a Status after every change.
// PublishStatus is called from the controller's event loop and must not block.
type StatusSink interface {
	PublishStatus(Status)
}
