package telemetry

import (
	"encoding/json"
	"math"
	"strings"
)

// JobStatus is the printer's gcode_state.
//
// Values other than the named constants (PREPARE, PAUSE, FAILED, ...) are
// kept verbatim.
type JobStatus string

// Job states the door automation reacts to.
const (
	StatusUnknown   JobStatus = ""
	StatusRunning   JobStatus = "RUNNING"
	StatusFinish    JobStatus = "FINISH"
	StatusCompleted JobStatus = "COMPLETED"
	StatusIdle      JobStatus = "IDLE"
)

// IsTerminal reports whether the job has ended successfully.
func (s JobStatus) IsTerminal() bool {
	return s == StatusFinish || s == StatusCompleted
}

// String returns the raw status, or "UNKNOWN" before the first report.
func (s JobStatus) String() string {
	if s == StatusUnknown {
		return "UNKNOWN"
	}
	return string(s)
}

// Snapshot is the latest merged view of the printer.
type Snapshot struct {
	CurrentTemp float64   `json:"current_temp"`
	TargetTemp  float64   `json:"target_temp"`
	Percent     float64   `json:"percent"`
	Status      JobStatus `json:"status"`
}

// WholePercent returns Percent rounded for display.
func (s Snapshot) WholePercent() int {
	return int(math.Round(s.Percent))
}

// Report keys read from the "print" object.
const (
	keyBedTemper       = "bed_temper"
	keyBedTargetTemper = "bed_target_temper"
	keyMCPercent       = "mc_percent"
	keyGcodeState      = "gcode_state"
)

// Merge overlays the fields present in payload onto snap.
//
// Payloads that are not JSON, have no "print" object or carry none of the
// known fields leave snap untouched and return false. Each known field is
// decoded on its own, so a mistyped value skips only that field.
// Temperatures are rounded to whole degrees and the percentage is clamped
// to 0..100.
func Merge(snap *Snapshot, payload []byte) bool {
	var r struct {
		Print map[string]json.RawMessage `json:"print"`
	}
	if err := json.Unmarshal(payload, &r); err != nil || r.Print == nil {
		return false
	}

	merged := false
	if v, ok := decodeNumber(r.Print, keyBedTemper); ok {
		snap.CurrentTemp = math.Round(v)
		merged = true
	}
	if v, ok := decodeNumber(r.Print, keyBedTargetTemper); ok {
		snap.TargetTemp = math.Round(v)
		merged = true
	}
	if v, ok := decodeNumber(r.Print, keyMCPercent); ok {
		snap.Percent = clampPercent(v)
		merged = true
	}
	if raw, ok := r.Print[keyGcodeState]; ok {
		var state string
		if err := json.Unmarshal(raw, &state); err == nil {
			if state = strings.ToUpper(strings.TrimSpace(state)); state != "" {
				snap.Status = JobStatus(state)
				merged = true
			}
		}
	}
	return merged
}

// decodeNumber returns the numeric value stored under key. Absent, null and
// non-numeric values report false.
func decodeNumber(fields map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return 0, false
	}
	return *v, true
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
