package door

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bambi-core/internal/actuator"
	"github.com/nerrad567/bambi-core/internal/bot"
	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/bambi-core/internal/joblog"
	"github.com/nerrad567/bambi-core/internal/material"
	"github.com/nerrad567/bambi-core/internal/scheduler"
	"github.com/nerrad567/bambi-core/internal/telemetry"
)

const (
	// eventQueueSize buffers events posted before or during a slow handler.
	eventQueueSize = 256

	// journalTimeout bounds a single job log write.
	journalTimeout = 2 * time.Second
)

// Dispatcher sends commands to the door actuator.
type Dispatcher interface {
	Open() error
	Close() error
	SaveAngles(openAngle, closeAngle int) error
}

// BotRunner runs the restart sequence.
type BotRunner interface {
	Start(ctx context.Context, seq bot.Sequence) error
	Completed() int64
	Running() bool
	SetOnComplete(fn func(bot.Result))
}

// Journal records lifecycle events.
type Journal interface {
	Append(ctx context.Context, e *joblog.Event) error
}

// Metrics records telemetry history.
type Metrics interface {
	WriteTelemetry(t influxdb.Telemetry)
	WriteDoorEvent(printer, event, phase string)
}

// Deps holds the controller's collaborators. Journal, Metrics and Clock
// are optional.
type Deps struct {
	Config     *config.Config
	Dispatcher Dispatcher
	Bot        BotRunner
	Journal    Journal
	Metrics    Metrics
	Clock      scheduler.Clock
	Logger     Logger
}

// Controller owns the automation state and serialises every input onto a
// single event loop.
//
// MQTT reports, device feed lines, timer firings, bot completions and API
// requests are posted as closures; Run executes them one at a time and
// publishes the status after each.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Controller struct {
	dispatcher Dispatcher
	bot        BotRunner
	journal    Journal
	metrics    Metrics
	sched      *scheduler.Scheduler
	machine    *Machine
	logger     Logger
	printer    string

	events  chan func()
	stopped chan struct{}
	started atomic.Bool

	// Owned by the event loop.
	runCtx           context.Context
	snap             telemetry.Snapshot
	materials        config.MaterialsConfig
	servo            config.ServoConfig
	sequence         bot.Sequence
	position         Position
	linkConnected    bool
	printerConnected bool

	mu        sync.RWMutex
	sinks     []StatusSink
	last      Status
	published bool
}

// New creates a controller. Call Run to start processing.
func New(deps Deps) (*Controller, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("door: config is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("door: dispatcher is required")
	}
	if deps.Bot == nil {
		return nil, fmt.Errorf("door: bot runner is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	cfg := deps.Config
	c := &Controller{
		dispatcher: deps.Dispatcher,
		bot:        deps.Bot,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		sched:      scheduler.New(deps.Clock),
		logger:     logger,
		printer:    cfg.Printer.Serial,
		events:     make(chan func(), eventQueueSize),
		stopped:    make(chan struct{}),
		runCtx:     context.Background(),
		materials:  copyMaterials(cfg.Materials),
		servo:      cfg.Servo,
		sequence:   bot.SequenceFromConfig(cfg.Bot.Sequence),
		position:   PositionUnknown,
	}

	c.machine = NewMachine(MachineConfig{
		Timers:     loopTimers{sched: c.sched, post: c.post},
		Actuator:   deps.Dispatcher,
		Restarter:  c,
		Materials:  func() config.MaterialsConfig { return c.materials },
		CloseDelay: cfg.Bot.CloseDelay(),
		OnEvent:    c.recordEvent,
		Logger:     logger,
	})

	c.bot.SetOnComplete(func(r bot.Result) {
		c.post(func() { c.onBotComplete(r) })
	})

	return c, nil
}

// Run processes events until ctx is cancelled. Outstanding timers are
// cancelled on return.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.stopped)
	defer c.sched.CancelAll()

	c.runCtx = ctx
	c.publish()

	c.logger.Info("door controller started",
		"close_delay", c.machine.closeDelay.String(),
		"cooldown", CooldownDelay.String(),
		"bot_steps", len(c.sequence),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("door controller stopping")
			return nil
		case fn := <-c.events:
			fn()
			c.publish()
		}
	}
}

// post queues fn for the event loop. It returns false once the loop has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// call runs fn on the event loop and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !c.post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// HandleReport merges a raw printer report and evaluates the automation.
// Payloads without job data are discarded.
func (c *Controller) HandleReport(payload []byte) {
	c.post(func() {
		if !telemetry.Merge(&c.snap, payload) {
			return
		}
		c.machine.OnTelemetry(c.snap)

		if c.metrics != nil {
			c.metrics.WriteTelemetry(influxdb.Telemetry{
				Printer:    c.printer,
				BedTemp:    c.snap.CurrentTemp,
				TargetTemp: c.snap.TargetTemp,
				Percent:    c.snap.WholePercent(),
				Status:     c.snap.Status.String(),
			})
		}
	})
}

// HandleDeviceLine updates the door position from a device feed line.
func (c *Controller) HandleDeviceLine(line string) {
	ev, ok := actuator.ParseDeviceEvent(line)
	if !ok {
		c.logger.Debug("device line ignored", "line", line)
		return
	}
	c.post(func() {
		c.position = c.position.Next(ev)
	})
}

// SetLinkConnected records the actuator link state.
func (c *Controller) SetLinkConnected(connected bool) {
	c.post(func() {
		c.linkConnected = connected
		if !connected {
			c.position = PositionUnknown
		}
	})
}

// SetPrinterConnected records the printer MQTT connection state.
func (c *Controller) SetPrinterConnected(connected bool) {
	c.post(func() { c.printerConnected = connected })
}

// OpenDoor commands the door open and sets the door-open latch.
func (c *Controller) OpenDoor(ctx context.Context) error {
	return c.call(ctx, c.machine.Open)
}

// CloseDoor commands the door closed and clears the door-open latch.
func (c *Controller) CloseDoor(ctx context.Context) error {
	return c.call(ctx, c.machine.Close)
}

// SaveServo stores new servo angles on the device.
func (c *Controller) SaveServo(ctx context.Context, openAngle, closeAngle int) error {
	return c.call(ctx, func() error {
		if err := c.dispatcher.SaveAngles(openAngle, closeAngle); err != nil {
			return err
		}
		c.servo = config.ServoConfig{Open: openAngle, Close: closeAngle}
		c.logger.Info("servo angles saved", "open", openAngle, "close", closeAngle)
		return nil
	})
}

// Servo returns the last saved servo angles.
func (c *Controller) Servo(ctx context.Context) (config.ServoConfig, error) {
	var servo config.ServoConfig
	err := c.call(ctx, func() error {
		servo = c.servo
		return nil
	})
	return servo, err
}

// StartBot starts the restart sequence on request.
func (c *Controller) StartBot(ctx context.Context) error {
	return c.call(ctx, c.Restart)
}

// Restart starts the configured bot sequence. It must run on the event loop.
func (c *Controller) Restart() error {
	return c.bot.Start(c.runCtx, c.sequence)
}

// Materials returns a copy of the material settings.
func (c *Controller) Materials(ctx context.Context) (config.MaterialsConfig, error) {
	var out config.MaterialsConfig
	err := c.call(ctx, func() error {
		out = copyMaterials(c.materials)
		return nil
	})
	return out, err
}

// SetMaterials replaces the material settings. The next report is
// evaluated against the new active profile.
func (c *Controller) SetMaterials(ctx context.Context, m config.MaterialsConfig) error {
	if err := material.Validate(m); err != nil {
		return err
	}
	m = copyMaterials(m)
	return c.call(ctx, func() error {
		c.materials = m
		c.logger.Info("material profiles updated",
			"active_profile_id", m.ActiveProfileID,
			"profiles", len(m.Profiles),
		)
		return nil
	})
}

// Status returns the last published status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// AddStatusSink registers a sink for status changes.
func (c *Controller) AddStatusSink(sink StatusSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

func (c *Controller) buildStatus() Status {
	st := c.machine.State()
	s := Status{
		CurrentTemp:      c.snap.CurrentTemp,
		TargetTemp:       c.snap.TargetTemp,
		Percent:          c.snap.WholePercent(),
		Status:           c.snap.Status.String(),
		IsDoorOpen:       st.DoorOpen,
		IsWaitingToClose: st.ClosePending,
		PrintedParts:     c.bot.Completed(),
		Phase:            c.machine.Phase(),
		DoorPosition:     c.position,
		LinkConnected:    c.linkConnected,
		PrinterConnected: c.printerConnected,
		BotRunning:       c.bot.Running(),
	}
	if p, ok := material.Resolve(c.materials); ok {
		s.ActiveProfile = p.Name
	}
	return s
}

// publish pushes the status to the sinks if it changed.
func (c *Controller) publish() {
	s := c.buildStatus()

	c.mu.Lock()
	if c.published && s == c.last {
		c.mu.Unlock()
		return
	}
	c.last = s
	c.published = true
	sinks := append([]StatusSink(nil), c.sinks...)
	c.mu.Unlock()

	for _, sink := range sinks {
		sink.PublishStatus(s)
	}
}

func (c *Controller) recordEvent(ev Event) {
	detail := "auto"
	if ev.Manual {
		detail = "manual"
	}
	c.appendJournal(joblog.Kind(ev.Kind), ev.Snapshot, detail)

	if c.metrics != nil {
		c.metrics.WriteDoorEvent(c.printer, string(ev.Kind), string(ev.Phase))
	}
}

func (c *Controller) onBotComplete(r bot.Result) {
	detail := fmt.Sprintf("steps=%d failed=%d", r.Steps, r.Failed)
	c.appendJournal(joblog.KindRestartCompleted, c.snap, detail)

	if c.metrics != nil {
		c.metrics.WriteDoorEvent(c.printer, string(joblog.KindRestartCompleted), string(c.machine.Phase()))
	}
}

func (c *Controller) appendJournal(kind joblog.Kind, snap telemetry.Snapshot, detail string) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	err := c.journal.Append(ctx, &joblog.Event{
		Kind:      kind,
		JobStatus: snap.Status.String(),
		BedTemp:   snap.CurrentTemp,
		Percent:   snap.WholePercent(),
		Detail:    detail,
	})
	if err != nil {
		c.logger.Error("failed to record job event", "kind", kind, "error", err)
	}
}

func copyMaterials(m config.MaterialsConfig) config.MaterialsConfig {
	m.Profiles = append([]config.MaterialProfileConfig(nil), m.Profiles...)
	return m
}

// loopTimers delivers scheduler callbacks through the controller's queue.
type loopTimers struct {
	sched *scheduler.Scheduler
	post  func(func()) bool
}

func (t loopTimers) Arm(kind scheduler.Kind, delay time.Duration, fn func()) bool {
	return t.sched.Arm(kind, delay, func() { t.post(fn) })
}
