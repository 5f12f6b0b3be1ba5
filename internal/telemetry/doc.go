// Package telemetry turns printer job reports into a live snapshot.
//
// Reports published on device/<serial>/report are sparse: each message
// carries only the fields that changed. Merge overlays whatever a report
// contains onto the previous Snapshot and ignores everything else, so
// malformed or unrelated messages are harmless noise.
package telemetry
