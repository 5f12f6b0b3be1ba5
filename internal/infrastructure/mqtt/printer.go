package mqtt

import "fmt"

// WatchPrinter subscribes handler to the printer's report topic and asks
// the printer for a full report.
//
// The full-report request is repeated automatically on every reconnect,
// because the printer otherwise only publishes fields that changed.
func (c *Client) WatchPrinter(serial string, handler MessageHandler) error {
	if serial == "" {
		return fmt.Errorf("%w: printer serial is required", ErrInvalidTopic)
	}

	if err := c.Subscribe(Topics{}.PrinterReport(serial), byte(c.cfg.QoS), handler); err != nil {
		return fmt.Errorf("subscribing to printer report: %w", err)
	}

	c.watchMu.Lock()
	c.watchedSerial = serial
	c.watchMu.Unlock()

	return c.RequestFullReport(serial)
}

// UnwatchPrinter drops the report subscription for serial and stops the
// full-report requests on reconnect. It is a no-op for a printer that is
// not being watched.
func (c *Client) UnwatchPrinter(serial string) error {
	c.watchMu.Lock()
	watched := c.watchedSerial == serial && serial != ""
	if watched {
		c.watchedSerial = ""
	}
	c.watchMu.Unlock()

	if !watched {
		return nil
	}
	if err := c.Unsubscribe(Topics{}.PrinterReport(serial)); err != nil {
		return fmt.Errorf("unsubscribing from printer report: %w", err)
	}
	return nil
}

// RequestFullReport publishes a pushall command to the printer.
func (c *Client) RequestFullReport(serial string) error {
	if err := c.Publish(Topics{}.PrinterRequest(serial), pushAllPayload(), byte(c.cfg.QoS), false); err != nil {
		return fmt.Errorf("requesting full report: %w", err)
	}
	return nil
}
