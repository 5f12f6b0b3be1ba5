// Package influxdb records printer telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//   - printer_telemetry: bed_temp, target_temp, percent, status (tag: printer)
//   - door_events: phase, count (tags: printer, event)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteTelemetry(influxdb.Telemetry{Printer: serial, BedTemp: 44, Percent: 85})
//
// Writes are batched according to influxdb.batch_size and
// influxdb.flush_interval; async failures are delivered to SetOnError.
package influxdb
