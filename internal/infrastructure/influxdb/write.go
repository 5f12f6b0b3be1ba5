package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the controller.
const (
	MeasurementTelemetry = "printer_telemetry"
	MeasurementDoor      = "door_events"
)

// Telemetry is one merged printer report.
type Telemetry struct {
	Printer    string
	BedTemp    float64
	TargetTemp float64
	Percent    int
	Status     string
}

// WriteTelemetry records a printer report. The write is batched and
// non-blocking; it is dropped silently when the client is closed.
//
// Example:
//
//	client.WriteTelemetry(influxdb.Telemetry{Printer: serial, BedTemp: 44, Percent: 85, Status: "RUNNING"})
func (c *Client) WriteTelemetry(t Telemetry) {
	c.writePoint(MeasurementTelemetry,
		map[string]string{"printer": t.Printer},
		map[string]any{
			"bed_temp":    t.BedTemp,
			"target_temp": t.TargetTemp,
			"percent":     t.Percent,
			"status":      t.Status,
		},
		time.Now(),
	)
}

// WriteDoorEvent records a door command or lifecycle event such as
// "door_opened" or "restart_completed", tagged with the controller phase.
func (c *Client) WriteDoorEvent(printer, event, phase string) {
	c.writePoint(MeasurementDoor,
		map[string]string{
			"printer": printer,
			"event":   event,
		},
		map[string]any{
			"phase": phase,
			"count": 1,
		},
		time.Now(),
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
