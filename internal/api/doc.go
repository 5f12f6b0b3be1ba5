// Package api implements the HTTP status surface and WebSocket push for the
// door controller.
//
// This package provides:
//   - REST endpoints for status, manual door control, servo calibration,
//     bot start, material profiles and job history
//   - A WebSocket hub that pushes door.Status after every change
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Every command is forwarded to the door.Controller, which runs it on its
// event loop. The Hub registers itself as a door.StatusSink, so status
// pushes come from the same place the state changes.
//
// # Security
//
// There is no authentication. The server binds to 127.0.0.1 by default;
// exposing it on the LAN is an explicit configuration choice.
package api
