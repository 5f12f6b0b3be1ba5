// Package serial maintains the USB serial link to the door actuator.
//
// The link opens the configured port with go.bug.st/serial, reconnects
// with exponential backoff whenever the device is unplugged, and hands
// every CRLF-terminated line from the device to a line handler.
//
// Writes never block on a missing device: they fail with ErrNotOpen and
// the caller decides whether to drop the command.
//
// Usage:
//
//	link := serial.NewLink(cfg.Serial, logger)
//	link.SetLineHandler(func(line string) { ... })
//	link.Start()
//	defer link.Close()
//
//	_, err := link.Write([]byte("OPEN\n"))
package serial
