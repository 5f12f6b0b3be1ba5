// Package actuator dispatches text commands to the door actuator.
//
// Commands are the plain tokens OPEN, CLOSE and SAVE:<open>:<close>, each
// sent with a trailing newline. When the link is down a command is dropped
// and logged, never queued: a stale OPEN arriving after the device
// reconnects would be unsafe.
//
// The device reports its own movement on the same link. ParseDeviceEvent
// turns those lines into DeviceEvent values for the status surface; the
// door automation does not depend on them.
package actuator
