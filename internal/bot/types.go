package bot

import (
	"time"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
)

// Step is one click followed by a pause.
type Step struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	DelaySeconds float64 `json:"delay_seconds"`
}

// Delay returns the pause after the click. Negative values are treated as zero.
func (s Step) Delay() time.Duration {
	if s.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(s.DelaySeconds * float64(time.Second))
}

// Sequence is an ordered list of steps.
type Sequence []Step

// SequenceFromConfig converts the configured steps.
func SequenceFromConfig(steps []config.BotStepConfig) Sequence {
	seq := make(Sequence, 0, len(steps))
	for _, s := range steps {
		seq = append(seq, Step{
			ID:           s.ID,
			Name:         s.Name,
			X:            s.X,
			Y:            s.Y,
			DelaySeconds: s.DelaySeconds,
		})
	}
	return seq
}

// Result summarises a completed run.
type Result struct {
	Steps     int
	Failed    int
	Completed int64
	Duration  time.Duration
}
