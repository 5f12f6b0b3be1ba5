package door

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/material"
	"github.com/nerrad567/bambi-core/internal/scheduler"
	"github.com/nerrad567/bambi-core/internal/telemetry"
)

// manualTimers records armed callbacks; tests fire them explicitly.
type manualTimers struct {
	armed  map[scheduler.Kind]func()
	delays map[scheduler.Kind]time.Duration
	arms   map[scheduler.Kind]int
}

func newManualTimers() *manualTimers {
	return &manualTimers{
		armed:  make(map[scheduler.Kind]func()),
		delays: make(map[scheduler.Kind]time.Duration),
		arms:   make(map[scheduler.Kind]int),
	}
}

func (m *manualTimers) Arm(kind scheduler.Kind, delay time.Duration, fn func()) bool {
	if _, ok := m.armed[kind]; ok {
		return false
	}
	m.armed[kind] = fn
	m.delays[kind] = delay
	m.arms[kind]++
	return true
}

func (m *manualTimers) Pending(kind scheduler.Kind) bool {
	_, ok := m.armed[kind]
	return ok
}

func (m *manualTimers) fire(t *testing.T, kind scheduler.Kind) {
	t.Helper()
	fn, ok := m.armed[kind]
	if !ok {
		t.Fatalf("no %s timer armed", kind)
	}
	delete(m.armed, kind)
	fn()
}

type fakeActuator struct {
	mu     sync.Mutex
	opens  int
	closes int
	saves  [][2]int
	err    error
}

func (f *fakeActuator) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.opens++
	return nil
}

func (f *fakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.closes++
	return nil
}

func (f *fakeActuator) SaveAngles(o, c int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves = append(f.saves, [2]int{o, c})
	return nil
}

func (f *fakeActuator) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart() error {
	f.calls++
	return f.err
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

type machineFixture struct {
	machine   *Machine
	timers    *manualTimers
	actuator  *fakeActuator
	restarter *fakeRestarter
	logger    *recordingLogger
	materials config.MaterialsConfig
	events    []EventKind
}

func newFixture(activeProfile string) *machineFixture {
	f := &machineFixture{
		timers:    newManualTimers(),
		actuator:  &fakeActuator{},
		restarter: &fakeRestarter{},
		logger:    &recordingLogger{},
		materials: config.MaterialsConfig{
			ActiveProfileID: activeProfile,
			Profiles:        material.DefaultProfiles(),
		},
	}
	f.machine = NewMachine(MachineConfig{
		Timers:    f.timers,
		Actuator:  f.actuator,
		Restarter: f.restarter,
		Materials: func() config.MaterialsConfig { return f.materials },
		OnEvent:   func(ev Event) { f.events = append(f.events, ev.Kind) },
		Logger:    f.logger,
	})
	return f
}

func snap(status telemetry.JobStatus, percent, temp float64) telemetry.Snapshot {
	return telemetry.Snapshot{CurrentTemp: temp, TargetTemp: 0, Percent: percent, Status: status}
}

func TestMachine_OpensOnceNearEndWhenSafe(t *testing.T) {
	f := newFixture("pla")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))

	opens, closes := f.actuator.counts()
	if opens != 1 || closes != 0 {
		t.Fatalf("opens = %d, closes = %d; want 1, 0", opens, closes)
	}
	if !f.machine.State().DoorOpen {
		t.Error("DoorOpen = false after OPEN")
	}
	if f.machine.Phase() != PhaseDoorOpen {
		t.Errorf("Phase() = %s, want %s", f.machine.Phase(), PhaseDoorOpen)
	}
}

func TestMachine_OpenIsIdempotent(t *testing.T) {
	f := newFixture("pla")

	reports := []telemetry.Snapshot{
		snap(telemetry.StatusRunning, 85, 44),
		snap(telemetry.StatusRunning, 90, 43),
		snap(telemetry.StatusRunning, 95, 50), // above threshold again
		snap(telemetry.StatusRunning, 99, 30),
	}
	for _, r := range reports {
		f.machine.OnTelemetry(r)
	}

	if opens, _ := f.actuator.counts(); opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
}

func TestMachine_OpenConditions(t *testing.T) {
	tests := []struct {
		name     string
		profile  string
		report   telemetry.Snapshot
		wantOpen bool
	}{
		{"at threshold", "pla", snap(telemetry.StatusRunning, 81, 45), true},
		{"too hot", "pla", snap(telemetry.StatusRunning, 90, 46), false},
		{"exactly 80 percent", "pla", snap(telemetry.StatusRunning, 80, 30), false},
		{"just past 80 percent", "pla", snap(telemetry.StatusRunning, 80.4, 30), true},
		{"early in job", "pla", snap(telemetry.StatusRunning, 10, 25), false},
		{"abs threshold", "abs", snap(telemetry.StatusRunning, 85, 79), true},
		{"asa too hot", "asa", snap(telemetry.StatusRunning, 85, 91), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.profile)
			f.machine.OnTelemetry(tt.report)

			opens, _ := f.actuator.counts()
			if (opens == 1) != tt.wantOpen {
				t.Errorf("opens = %d, want open = %v", opens, tt.wantOpen)
			}
		})
	}
}

func TestMachine_NoProfileNeverOpensAndWarnsOnce(t *testing.T) {
	for _, active := range []string{"", "petg"} {
		t.Run("active="+active, func(t *testing.T) {
			f := newFixture(active)

			for i := 0; i < 20; i++ {
				f.machine.OnTelemetry(snap(telemetry.StatusRunning, float64(80+i), 20))
			}

			if opens, _ := f.actuator.counts(); opens != 0 {
				t.Errorf("opens = %d, want 0", opens)
			}
			if f.logger.count() != 1 {
				t.Errorf("warnings = %d, want 1", f.logger.count())
			}
			if f.machine.State().DoorOpen {
				t.Error("DoorOpen set without a profile")
			}
		})
	}
}

func TestMachine_NoProfileWarnsAgainNextJob(t *testing.T) {
	f := newFixture("")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 50, 60))
	f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 60))
	f.timers.fire(t, scheduler.KindClose)
	f.timers.fire(t, scheduler.KindCooldown)

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 1, 60))

	if f.logger.count() != 2 {
		t.Errorf("warnings = %d, want one per job (2)", f.logger.count())
	}
}

func TestMachine_NoProfileStillClosesOnFinish(t *testing.T) {
	f := newFixture("")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 50, 60))
	f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 60))

	if !f.timers.Pending(scheduler.KindClose) {
		t.Fatal("close timer not armed")
	}
	f.timers.fire(t, scheduler.KindClose)

	if _, closes := f.actuator.counts(); closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
}

func TestMachine_RepeatedFinishArmsOneCloseTimer(t *testing.T) {
	f := newFixture("pla")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 95, 40))
	for i := 0; i < 3; i++ {
		f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
	}

	if f.timers.arms[scheduler.KindClose] != 1 {
		t.Errorf("close timer armed %d times, want 1", f.timers.arms[scheduler.KindClose])
	}
	if f.timers.delays[scheduler.KindClose] != config.DefaultCloseDelay {
		t.Errorf("close delay = %v, want %v", f.timers.delays[scheduler.KindClose], config.DefaultCloseDelay)
	}
	if !f.machine.State().ClosePending {
		t.Error("ClosePending = false")
	}
	if f.machine.Phase() != PhaseClosePending {
		t.Errorf("Phase() = %s, want %s", f.machine.Phase(), PhaseClosePending)
	}
}

func TestMachine_CompletedArmsCloseTimer(t *testing.T) {
	f := newFixture("pla")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 95, 40))
	f.machine.OnTelemetry(snap(telemetry.StatusCompleted, 100, 40))

	if !f.timers.Pending(scheduler.KindClose) {
		t.Error("close timer not armed on COMPLETED")
	}
}

func TestMachine_CloseTimerClosesAndArmsCooldown(t *testing.T) {
	f := newFixture("pla")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
	f.timers.fire(t, scheduler.KindClose)

	_, closes := f.actuator.counts()
	if closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	st := f.machine.State()
	if st.DoorOpen || st.ClosePending || st.JobArmed {
		t.Errorf("state after close = %+v, want door, close and job latches cleared", st)
	}
	if !st.CooldownPending || !f.timers.Pending(scheduler.KindCooldown) {
		t.Fatal("cooldown timer not armed")
	}
	if f.timers.delays[scheduler.KindCooldown] != CooldownDelay {
		t.Errorf("cooldown = %v, want %v", f.timers.delays[scheduler.KindCooldown], CooldownDelay)
	}
	if f.machine.Phase() != PhaseCooldownPending {
		t.Errorf("Phase() = %s, want %s", f.machine.Phase(), PhaseCooldownPending)
	}
}

func TestMachine_CooldownRestart(t *testing.T) {
	tests := []struct {
		name        string
		statusAfter telemetry.JobStatus
		wantRestart int
	}{
		{"still finish", telemetry.StatusFinish, 1},
		{"became idle", telemetry.StatusIdle, 1},
		{"new job running", telemetry.StatusRunning, 0},
		{"completed", telemetry.StatusCompleted, 0},
		{"failed", telemetry.JobStatus("FAILED"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("pla")

			f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
			f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
			f.timers.fire(t, scheduler.KindClose)

			f.machine.OnTelemetry(snap(tt.statusAfter, 100, 35))
			f.timers.fire(t, scheduler.KindCooldown)

			if f.restarter.calls != tt.wantRestart {
				t.Errorf("restarts = %d, want %d", f.restarter.calls, tt.wantRestart)
			}
			if f.machine.State().CooldownPending {
				t.Error("CooldownPending still set after firing")
			}
		})
	}
}

func TestMachine_NoReopenAfterCloseWithoutNewJob(t *testing.T) {
	f := newFixture("pla")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
	f.timers.fire(t, scheduler.KindClose)

	// The printer keeps reporting FINISH at 100% with a cold bed.
	for i := 0; i < 5; i++ {
		f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 30))
	}

	opens, closes := f.actuator.counts()
	if opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
	if f.timers.arms[scheduler.KindClose] != 1 {
		t.Errorf("close timer armed %d times, want 1", f.timers.arms[scheduler.KindClose])
	}
	if closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
}

func TestMachine_FullCycleTwice(t *testing.T) {
	f := newFixture("pla")

	for job := 1; job <= 2; job++ {
		f.machine.OnTelemetry(snap(telemetry.StatusRunning, 10, 60))
		f.machine.OnTelemetry(snap(telemetry.StatusRunning, 90, 44))
		f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
		f.timers.fire(t, scheduler.KindClose)
		f.machine.OnTelemetry(snap(telemetry.StatusIdle, 0, 35))
		f.timers.fire(t, scheduler.KindCooldown)

		opens, closes := f.actuator.counts()
		if opens != job || closes != job || f.restarter.calls != job {
			t.Fatalf("after job %d: opens = %d, closes = %d, restarts = %d", job, opens, closes, f.restarter.calls)
		}
	}

	want := []EventKind{
		EventDoorOpened, EventJobFinished, EventDoorClosed,
		EventDoorOpened, EventJobFinished, EventDoorClosed,
	}
	if len(f.events) != len(want) {
		t.Fatalf("events = %v, want %v", f.events, want)
	}
	for i := range want {
		if f.events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, f.events[i], want[i])
		}
	}
}

func TestMachine_LinkDownKeepsTransition(t *testing.T) {
	f := newFixture("pla")
	f.actuator.err = errors.New("link down")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	if !f.machine.State().DoorOpen {
		t.Fatal("DoorOpen = false after dropped OPEN")
	}

	// Reconnecting must not replay the OPEN.
	f.actuator.err = nil
	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 90, 40))
	if opens, _ := f.actuator.counts(); opens != 0 {
		t.Errorf("opens = %d, want 0", opens)
	}
}

func TestMachine_RestartErrorIsLogged(t *testing.T) {
	f := newFixture("pla")
	f.restarter.err = errors.New("bot: run in progress")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	f.machine.OnTelemetry(snap(telemetry.StatusFinish, 100, 40))
	f.timers.fire(t, scheduler.KindClose)
	f.timers.fire(t, scheduler.KindCooldown)

	if f.restarter.calls != 1 {
		t.Errorf("restarts = %d, want 1", f.restarter.calls)
	}
	if f.logger.count() != 1 {
		t.Errorf("warnings = %d, want 1", f.logger.count())
	}
}

func TestMachine_RuntimeProfileEdit(t *testing.T) {
	f := newFixture("")

	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	if opens, _ := f.actuator.counts(); opens != 0 {
		t.Fatalf("opened without a profile")
	}

	f.materials.ActiveProfileID = "pla"
	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 86, 44))
	if opens, _ := f.actuator.counts(); opens != 1 {
		t.Errorf("opens = %d after selecting a profile, want 1", opens)
	}
}

func TestMachine_ManualCommands(t *testing.T) {
	f := newFixture("pla")

	if err := f.machine.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 44))
	if opens, _ := f.actuator.counts(); opens != 1 {
		t.Errorf("automation repeated a manual OPEN: opens = %d", opens)
	}

	if err := f.machine.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if f.machine.State().DoorOpen {
		t.Error("DoorOpen still set after manual CLOSE")
	}

	f.actuator.err = errors.New("link down")
	if err := f.machine.Open(); err == nil {
		t.Error("Open() with link down expected error")
	}
	if f.machine.State().DoorOpen {
		t.Error("failed manual OPEN set the latch")
	}
}

func TestMachine_Phases(t *testing.T) {
	f := newFixture("pla")

	if f.machine.Phase() != PhaseWaiting {
		t.Errorf("initial Phase() = %s", f.machine.Phase())
	}
	f.machine.OnTelemetry(snap(telemetry.StatusRunning, 85, 70))
	if f.machine.Phase() != PhaseNearEnd {
		t.Errorf("hot near end Phase() = %s, want %s", f.machine.Phase(), PhaseNearEnd)
	}
}

func TestMachine_CustomCloseDelay(t *testing.T) {
	timers := newManualTimers()
	m := NewMachine(MachineConfig{
		Timers:     timers,
		Actuator:   &fakeActuator{},
		CloseDelay: 5 * time.Second,
	})

	m.OnTelemetry(snap(telemetry.StatusRunning, 50, 60))
	m.OnTelemetry(snap(telemetry.StatusFinish, 100, 60))

	if timers.delays[scheduler.KindClose] != 5*time.Second {
		t.Errorf("close delay = %v, want 5s", timers.delays[scheduler.KindClose])
	}
}
