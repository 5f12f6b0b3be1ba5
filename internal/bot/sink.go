package bot

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// clickTimeout bounds one invocation of the click command.
const clickTimeout = 10 * time.Second

// CommandSink clicks by running an external program.
//
// Each argument may contain {x} and {y}, replaced with the step's
// coordinates, e.g. ["xdotool", "mousemove", "{x}", "{y}", "click", "1"].
type CommandSink struct {
	argv []string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandSink creates a sink from an argv template.
func NewCommandSink(argv []string) (*CommandSink, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoClickCommand
	}
	return &CommandSink{
		argv: append([]string(nil), argv...),
		run:  runCommand,
	}, nil
}

// Click runs the command for (x, y).
func (s *CommandSink) Click(ctx context.Context, x, y int) error {
	ctx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()

	args := expandArgs(s.argv, x, y)
	out, err := s.run(ctx, args[0], args[1:]...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("click at %d,%d: %w: %s", x, y, err, msg)
		}
		return fmt.Errorf("click at %d,%d: %w", x, y, err)
	}
	return nil
}

func expandArgs(argv []string, x, y int) []string {
	r := strings.NewReplacer("{x}", strconv.Itoa(x), "{y}", strconv.Itoa(y))
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = r.Replace(a)
	}
	return args
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // argv comes from the operator's config file
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// NoopSink logs clicks without touching the display.
type NoopSink struct {
	logger Logger
}

// NewNoopSink creates a sink that only logs.
func NewNoopSink(logger Logger) *NoopSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &NoopSink{logger: logger}
}

// Click logs the coordinates.
func (s *NoopSink) Click(_ context.Context, x, y int) error {
	s.logger.Info("bot click (no click command configured)", "x", x, "y", y)
	return nil
}
