package door

import (
	"time"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/material"
	"github.com/nerrad567/bambi-core/internal/scheduler"
	"github.com/nerrad567/bambi-core/internal/telemetry"
)

const (
	// CooldownDelay is the wait after CLOSE before a restart is considered.
	CooldownDelay = 60 * time.Second

	// nearEndPercent is the progress above which the door may open.
	nearEndPercent = 80
)

// Phase is the conceptual automation state derived from State and the
// latest snapshot.
type Phase string

// Automation phases.
const (
	PhaseWaiting         Phase = "WAITING"
	PhaseNearEnd         Phase = "NEAR_END_WAITING_FOR_TEMP"
	PhaseDoorOpen        Phase = "DOOR_OPEN"
	PhaseClosePending    Phase = "CLOSE_PENDING"
	PhaseCooldownPending Phase = "COOLDOWN_RESTART_PENDING"
)

// State holds the automation flags.
type State struct {
	// DoorOpen is the per-job door-open latch.
	DoorOpen bool `json:"door_open"`

	// ClosePending is set while the close timer is armed.
	ClosePending bool `json:"close_pending"`

	// CooldownPending is set while the cooldown timer is armed.
	CooldownPending bool `json:"cooldown_pending"`

	// ProfileWarned suppresses repeat missing-profile warnings within a job.
	ProfileWarned bool `json:"profile_warned"`

	// JobArmed is set by a RUNNING report and cleared when the door closes.
	// OPEN and the close timer both require it, so a printer that keeps
	// reporting FINISH after the close cannot restart the cycle.
	JobArmed bool `json:"job_armed"`
}

// Timers arms named one-shot callbacks.
type Timers interface {
	Arm(kind scheduler.Kind, delay time.Duration, fn func()) bool
}

// Actuator receives door intents. Errors mean the command was dropped.
type Actuator interface {
	Open() error
	Close() error
}

// Restarter starts the bot sequence for the next job.
type Restarter interface {
	Restart() error
}

// Event is a lifecycle transition reported by the machine.
type Event struct {
	Kind     EventKind
	Snapshot telemetry.Snapshot
	Phase    Phase
	Manual   bool
}

// EventKind names a machine transition.
type EventKind string

// Machine transitions.
const (
	EventDoorOpened     EventKind = "door_opened"
	EventDoorClosed     EventKind = "door_closed"
	EventJobFinished    EventKind = "job_finished"
	EventRestartSkipped EventKind = "restart_skipped"
)

// MachineConfig wires a Machine to its collaborators.
type MachineConfig struct {
	Timers    Timers
	Actuator  Actuator
	Restarter Restarter

	// Materials returns the current material settings. It is called on
	// every evaluation so runtime edits apply to the next report.
	Materials func() config.MaterialsConfig

	// CloseDelay is the wait after FINISH/COMPLETED before CLOSE.
	CloseDelay time.Duration

	// OnEvent, if set, receives every transition.
	OnEvent func(Event)

	Logger Logger
}

// Machine is the door automation decision engine.
//
// Thread Safety: Machine is not safe for concurrent use. The Controller
// calls it only from its event loop, and Timers must deliver callbacks
// there too.
type Machine struct {
	timers     Timers
	actuator   Actuator
	restarter  Restarter
	materials  func() config.MaterialsConfig
	closeDelay time.Duration
	onEvent    func(Event)
	logger     Logger

	state State
	snap  telemetry.Snapshot
}

// NewMachine creates a machine with all flags false and an unknown status.
func NewMachine(cfg MachineConfig) *Machine {
	m := &Machine{
		timers:     cfg.Timers,
		actuator:   cfg.Actuator,
		restarter:  cfg.Restarter,
		materials:  cfg.Materials,
		closeDelay: cfg.CloseDelay,
		onEvent:    cfg.OnEvent,
		logger:     cfg.Logger,
	}
	if m.closeDelay <= 0 {
		m.closeDelay = config.DefaultCloseDelay
	}
	if m.materials == nil {
		m.materials = func() config.MaterialsConfig { return config.MaterialsConfig{} }
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// State returns a copy of the automation flags.
func (m *Machine) State() State {
	return m.state
}

// Phase derives the conceptual state.
func (m *Machine) Phase() Phase {
	switch {
	case m.state.CooldownPending:
		return PhaseCooldownPending
	case m.state.ClosePending:
		return PhaseClosePending
	case m.state.DoorOpen:
		return PhaseDoorOpen
	case m.state.JobArmed && m.snap.Percent > nearEndPercent:
		return PhaseNearEnd
	default:
		return PhaseWaiting
	}
}

// OnTelemetry evaluates the rules against a freshly merged snapshot.
func (m *Machine) OnTelemetry(snap telemetry.Snapshot) {
	m.snap = snap

	if snap.Status == telemetry.StatusRunning && !m.state.JobArmed {
		m.state.JobArmed = true
		m.state.ProfileWarned = false
		m.logger.Info("print job running, door automation armed", "percent", snap.Percent)
	}

	profile, ok := material.Resolve(m.materials())
	if !ok {
		if snap.Status == telemetry.StatusRunning && !m.state.ProfileWarned {
			m.state.ProfileWarned = true
			m.logger.Warn("no active material profile, door automation inactive for this job",
				"active_profile_id", m.materials().ActiveProfileID,
			)
		}
	} else {
		m.evaluateOpen(profile)
	}

	if snap.Status.IsTerminal() && !m.state.ClosePending && m.state.JobArmed {
		m.armClose()
	}
}

func (m *Machine) evaluateOpen(profile material.Profile) {
	if m.state.DoorOpen || !m.state.JobArmed {
		return
	}

	nearEnd := m.snap.Percent > nearEndPercent
	safeTemp := m.snap.CurrentTemp <= profile.OpenTemp
	if !nearEnd || !safeTemp {
		return
	}

	m.state.DoorOpen = true
	m.logger.Info("bed below safe temperature near end of job, opening door",
		"profile", profile.ID,
		"open_temp", profile.OpenTemp,
		"bed_temp", m.snap.CurrentTemp,
		"percent", m.snap.Percent,
	)
	m.dispatch(m.actuator.Open, "OPEN")
	m.emit(EventDoorOpened, false)
}

func (m *Machine) armClose() {
	if !m.timers.Arm(scheduler.KindClose, m.closeDelay, m.onCloseTimer) {
		return
	}
	m.state.ClosePending = true
	m.logger.Info("job finished, close timer armed",
		"status", m.snap.Status.String(),
		"delay", m.closeDelay.String(),
	)
	m.emit(EventJobFinished, false)
}

// onCloseTimer closes the door and starts the cooldown.
func (m *Machine) onCloseTimer() {
	m.logger.Info("close delay elapsed, closing door")
	m.dispatch(m.actuator.Close, "CLOSE")

	m.state.ClosePending = false
	m.state.DoorOpen = false
	m.state.JobArmed = false
	m.state.ProfileWarned = false
	m.emit(EventDoorClosed, false)

	if m.timers.Arm(scheduler.KindCooldown, CooldownDelay, m.onCooldownTimer) {
		m.state.CooldownPending = true
	}
}

// onCooldownTimer restarts the printer if it is still idle.
func (m *Machine) onCooldownTimer() {
	m.state.CooldownPending = false

	status := m.snap.Status
	if status != telemetry.StatusFinish && status != telemetry.StatusIdle {
		m.logger.Info("cooldown elapsed but printer moved on, restart skipped", "status", status.String())
		m.emit(EventRestartSkipped, false)
		return
	}

	m.logger.Info("cooldown elapsed, starting next job", "status", status.String())
	if m.restarter == nil {
		return
	}
	if err := m.restarter.Restart(); err != nil {
		m.logger.Warn("restart not started", "error", err)
	}
}

// Open commands the door open outside the automation and sets the latch.
func (m *Machine) Open() error {
	err := m.actuator.Open()
	if err == nil {
		m.state.DoorOpen = true
		m.emit(EventDoorOpened, true)
	}
	return err
}

// Close commands the door closed outside the automation and clears the latch.
func (m *Machine) Close() error {
	err := m.actuator.Close()
	if err == nil {
		m.state.DoorOpen = false
		m.emit(EventDoorClosed, true)
	}
	return err
}

// dispatch sends an intent. A dropped command does not undo the transition.
func (m *Machine) dispatch(send func() error, cmd string) {
	if err := send(); err != nil {
		m.logger.Debug("door command not delivered", "command", cmd, "error", err)
	}
}

func (m *Machine) emit(kind EventKind, manual bool) {
	if m.onEvent == nil {
		return
	}
	m.onEvent(Event{Kind: kind, Snapshot: m.snap, Phase: m.Phase(), Manual: manual})
}
