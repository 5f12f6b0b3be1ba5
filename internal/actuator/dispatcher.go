package actuator

import (
	"fmt"
	"strconv"
)

// Command tokens understood by the door firmware.
const (
	CmdOpen  = "OPEN"
	CmdClose = "CLOSE"
	cmdSave  = "SAVE"
)

// maxAngle is the servo's mechanical limit in degrees.
const maxAngle = 180

// Link is the transport the dispatcher writes to.
type Link interface {
	IsConnected() bool
	Write(p []byte) (int, error)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Dispatcher forwards commands to the actuator link.
//
// Thread Safety: Dispatcher holds no state of its own; concurrency safety
// is that of the Link.
type Dispatcher struct {
	link   Link
	logger Logger
}

// NewDispatcher creates a dispatcher writing to link.
func NewDispatcher(link Link, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{link: link, logger: logger}
}

// Send forwards cmd followed by a newline.
//
// Returns ErrLinkDown if the link is not established. The command is not
// retried.
func (d *Dispatcher) Send(cmd string) error {
	if d.link == nil || !d.link.IsConnected() {
		d.logger.Warn("actuator link down, command dropped", "command", cmd)
		return ErrLinkDown
	}

	if _, err := d.link.Write([]byte(cmd + "\n")); err != nil {
		d.logger.Warn("actuator write failed, command dropped", "command", cmd, "error", err)
		return fmt.Errorf("sending %s: %w", cmd, err)
	}

	d.logger.Debug("actuator command sent", "command", cmd)
	return nil
}

// Open sends OPEN.
func (d *Dispatcher) Open() error {
	return d.Send(CmdOpen)
}

// Close sends CLOSE.
func (d *Dispatcher) Close() error {
	return d.Send(CmdClose)
}

// SaveAngles stores new servo end positions on the device.
func (d *Dispatcher) SaveAngles(openAngle, closeAngle int) error {
	if err := ValidateAngles(openAngle, closeAngle); err != nil {
		return err
	}
	return d.Send(SaveCommand(openAngle, closeAngle))
}

// SaveCommand builds the SAVE:<open>:<close> token.
func SaveCommand(openAngle, closeAngle int) string {
	return cmdSave + ":" + strconv.Itoa(openAngle) + ":" + strconv.Itoa(closeAngle)
}

// ValidateAngles checks both servo angles are within 0..180.
func ValidateAngles(openAngle, closeAngle int) error {
	for _, a := range []int{openAngle, closeAngle} {
		if a < 0 || a > maxAngle {
			return fmt.Errorf("%w: %d", ErrInvalidAngle, a)
		}
	}
	return nil
}
