package serial

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	bugserial "go.bug.st/serial"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
)

const (
	// defaultReconnectDelay is the initial wait between open attempts.
	defaultReconnectDelay = 5 * time.Second

	// maxReconnectDelay caps the backoff between open attempts.
	maxReconnectDelay = time.Minute

	// maxLineLength bounds a single device line.
	maxLineLength = 4096
)

// Port is an open serial device.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the named port at the given baud rate.
type Opener func(name string, baudRate int) (Port, error)

// Lister returns the names of the serial ports present on the host.
type Lister func() ([]string, error)

// Logger is the logging interface used by the link.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// openPort opens a real device in 8N1 mode.
func openPort(name string, baudRate int) (Port, error) {
	port, err := bugserial.Open(name, &bugserial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return port, nil
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Link is a self-healing connection to the actuator's serial port.
//
// Thread Safety:
//   - Write, IsConnected and PortName are safe for concurrent use.
//   - The line handler runs on the link's reader goroutine.
type Link struct {
	cfg            config.SerialConfig
	open           Opener
	list           Lister
	logger         Logger
	reconnectDelay time.Duration

	mu        sync.RWMutex
	port      Port
	portName  string
	connected bool

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	onLine    func(line string)
	onState   func(connected bool)

	done    *closeOnce
	wg      sync.WaitGroup
	started bool
}

// Option configures a Link.
type Option func(*Link)

// WithOpener replaces the port opener (used by tests).
func WithOpener(o Opener) Option {
	return func(l *Link) { l.open = o }
}

// WithLister replaces the port discovery function (used by tests).
func WithLister(fn Lister) Option {
	return func(l *Link) { l.list = fn }
}

// WithReconnectDelay overrides serial.reconnect_delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(l *Link) { l.reconnectDelay = d }
}

// NewLink creates an unstarted link. A nil logger discards log output.
func NewLink(cfg config.SerialConfig, logger Logger, opts ...Option) *Link {
	if logger == nil {
		logger = noopLogger{}
	}
	delay := time.Duration(cfg.ReconnectDelay) * time.Second
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	l := &Link{
		cfg:            cfg,
		open:           openPort,
		list:           bugserial.GetPortsList,
		logger:         logger,
		reconnectDelay: delay,
		done:           newCloseOnce(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLineHandler sets the callback for each line received from the device.
// Trailing CR/LF is stripped; empty lines are skipped.
func (l *Link) SetLineHandler(fn func(line string)) {
	l.handlerMu.Lock()
	l.onLine = fn
	l.handlerMu.Unlock()
}

// SetStateHandler sets the callback invoked when the port opens or drops.
func (l *Link) SetStateHandler(fn func(connected bool)) {
	l.handlerMu.Lock()
	l.onState = fn
	l.handlerMu.Unlock()
}

// Start launches the background open/read loop. It returns immediately;
// the device may be absent at start-up.
func (l *Link) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run()
}

// run opens the port, reads until it fails, and retries with backoff.
func (l *Link) run() {
	defer l.wg.Done()

	backoff := l.reconnectDelay
	delay := backoff

	for !l.isClosed() {
		port, name, err := l.openConfigured()
		if err != nil {
			l.logger.Warn("actuator port unavailable", "port", l.cfg.Port, "error", err, "retry_in", delay.String())
			if !l.wait(delay) {
				return
			}
			delay = nextBackoff(delay)
			continue
		}

		delay = backoff
		if !l.setPort(port, name) {
			return
		}
		l.logger.Info("actuator port opened", "port", name, "baud_rate", l.cfg.BaudRate)

		l.readLines(port)

		l.dropPort(port)
		if l.isClosed() {
			return
		}
		l.logger.Warn("actuator port lost, reconnecting", "port", name)
		if !l.wait(backoff) {
			return
		}
	}
}

// openConfigured opens the configured port, or the first discovered one
// when serial.port is empty.
func (l *Link) openConfigured() (Port, string, error) {
	name := l.cfg.Port
	if name == "" {
		ports, err := l.list()
		if err != nil {
			return nil, "", fmt.Errorf("listing ports: %w", err)
		}
		if len(ports) == 0 {
			return nil, "", ErrNoPort
		}
		name = ports[0]
	}

	port, err := l.open(name, l.cfg.BaudRate)
	if err != nil {
		return nil, "", err
	}
	return port, name, nil
}

// readLines delivers device lines until the port fails or is closed.
func (l *Link) readLines(port Port) {
	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		l.handlerMu.RLock()
		fn := l.onLine
		l.handlerMu.RUnlock()
		if fn != nil {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil && !l.isClosed() {
		l.logger.Error("actuator read failed", "error", err)
	}
}

// Write sends p to the device. It fails with ErrNotOpen while no port is open.
// A failed write drops the port so the reader reconnects.
func (l *Link) Write(p []byte) (int, error) {
	l.mu.RLock()
	port, connected := l.port, l.connected
	l.mu.RUnlock()

	if !connected || port == nil {
		return 0, ErrNotOpen
	}

	l.writeMu.Lock()
	n, err := port.Write(p)
	l.writeMu.Unlock()
	if err != nil {
		l.dropPort(port)
		return n, fmt.Errorf("writing to actuator: %w", err)
	}
	return n, nil
}

// IsConnected reports whether a port is currently open.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// PortName returns the name of the open port, or "" when disconnected.
func (l *Link) PortName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.connected {
		return ""
	}
	return l.portName
}

// Ports lists the serial ports present on the host.
func (l *Link) Ports() ([]string, error) {
	ports, err := l.list()
	if err != nil {
		return nil, fmt.Errorf("listing ports: %w", err)
	}
	return ports, nil
}

// Close stops the loop, closes the port and waits for the reader to exit.
// Safe to call multiple times.
func (l *Link) Close() error {
	l.done.Close()

	l.mu.RLock()
	port := l.port
	l.mu.RUnlock()
	if port != nil {
		l.dropPort(port)
	}

	l.wg.Wait()
	return nil
}

// setPort installs an opened port. It closes the port and returns false if
// the link was shut down while opening.
func (l *Link) setPort(port Port, name string) bool {
	l.mu.Lock()
	if l.isClosed() {
		l.mu.Unlock()
		port.Close() //nolint:errcheck // shutting down
		return false
	}
	l.port = port
	l.portName = name
	l.connected = true
	l.mu.Unlock()
	l.notifyState(true)
	return true
}

// dropPort closes port if it is still the current one.
func (l *Link) dropPort(port Port) {
	l.mu.Lock()
	if l.port != port {
		l.mu.Unlock()
		return
	}
	l.port = nil
	l.connected = false
	l.mu.Unlock()

	port.Close() //nolint:errcheck // best effort, the device may already be gone
	l.notifyState(false)
}

func (l *Link) notifyState(connected bool) {
	l.handlerMu.RLock()
	fn := l.onState
	l.handlerMu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

// wait sleeps for d. It returns false if the link was closed meanwhile.
func (l *Link) wait(d time.Duration) bool {
	select {
	case <-l.done.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

// nextBackoff grows d by half, capped at maxReconnectDelay.
func nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * 1.5)
	if next > maxReconnectDelay {
		next = maxReconnectDelay
	}
	return next
}
