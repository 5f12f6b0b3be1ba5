package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Sink performs a pointer click on the host display.
type Sink interface {
	Click(ctx context.Context, x, y int) error
}

// Logger is the logging interface used by the bot package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs bot sequences one at a time.
//
// Thread Safety: all methods are safe for concurrent use.
type Executor struct {
	sink   Sink
	logger Logger

	running   atomic.Bool
	completed atomic.Int64

	mu         sync.Mutex
	onComplete func(Result)
}

// NewExecutor creates an executor clicking through sink.
func NewExecutor(sink Sink, logger Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{sink: sink, logger: logger}
}

// SetOnComplete registers fn to be called after every completed run.
// fn runs on the executor's goroutine.
func (e *Executor) SetOnComplete(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

// Completed returns the number of runs that finished all their steps.
func (e *Executor) Completed() int64 {
	return e.completed.Load()
}

// SetCompleted restores the completed-run counter, for example from the job log.
func (e *Executor) SetCompleted(n int64) {
	e.completed.Store(n)
}

// Running reports whether a run is in flight.
func (e *Executor) Running() bool {
	return e.running.Load()
}

// Run executes seq and blocks until it finishes.
//
// Returns ErrEmptySequence or ErrRunInProgress without side effects, or
// the context error if ctx is cancelled between steps. A cancelled run
// does not count as completed.
func (e *Executor) Run(ctx context.Context, seq Sequence) error {
	if err := e.acquire(seq); err != nil {
		return err
	}
	return e.execute(ctx, seq)
}

// Start executes seq on a new goroutine.
//
// The precondition checks happen before Start returns, so callers learn
// about a rejected run synchronously.
func (e *Executor) Start(ctx context.Context, seq Sequence) error {
	if err := e.acquire(seq); err != nil {
		return err
	}
	go func() {
		if err := e.execute(ctx, seq); err != nil {
			e.logger.Warn("bot run aborted", "error", err)
		}
	}()
	return nil
}

func (e *Executor) acquire(seq Sequence) error {
	if len(seq) == 0 {
		e.logger.Warn("bot run rejected: sequence is empty")
		return ErrEmptySequence
	}
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("bot run rejected: already running")
		return ErrRunInProgress
	}
	return nil
}

func (e *Executor) execute(ctx context.Context, seq Sequence) error {
	started := time.Now()
	e.logger.Info("bot run started", "steps", len(seq))

	failed, err := e.runSteps(ctx, seq)
	if err != nil {
		e.running.Store(false)
		return err
	}

	result := Result{
		Steps:     len(seq),
		Failed:    failed,
		Completed: e.completed.Add(1),
		Duration:  time.Since(started),
	}
	e.running.Store(false)

	e.logger.Info("bot run completed",
		"steps", result.Steps,
		"failed", result.Failed,
		"printed_parts", result.Completed,
		"duration_ms", result.Duration.Milliseconds(),
	)

	e.mu.Lock()
	fn := e.onComplete
	e.mu.Unlock()
	if fn != nil {
		fn(result)
	}
	return nil
}

// runSteps clicks through seq and returns the number of failed clicks.
func (e *Executor) runSteps(ctx context.Context, seq Sequence) (int, error) {
	failed := 0
	for i, step := range seq {
		if err := ctx.Err(); err != nil {
			return failed, fmt.Errorf("before step %d: %w", i+1, err)
		}

		if err := e.sink.Click(ctx, step.X, step.Y); err != nil {
			failed++
			e.logger.Error("bot click failed",
				"step", i+1,
				"step_id", step.ID,
				"name", step.Name,
				"x", step.X,
				"y", step.Y,
				"error", err,
			)
		}

		if err := sleep(ctx, step.Delay()); err != nil {
			return failed, fmt.Errorf("waiting after step %d: %w", i+1, err)
		}
	}
	return failed, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
