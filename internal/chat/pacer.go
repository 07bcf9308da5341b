package chat

import (
	"context"
	"time"
)

// Pacer inserts the short pauses between narration segments that make
// an action turn read like a hand-off between agents. The pauses are
// presentation only and carry no correctness weight, which is why the
// strategy is injectable: tests run with NopPacer and stay instant.
type Pacer interface {
	Pause(ctx context.Context)
}

// SleepPacer pauses for a fixed duration, cutting short on cancellation.
type SleepPacer struct {
	Delay time.Duration
}

func (p SleepPacer) Pause(ctx context.Context) {
	if p.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(p.Delay):
	}
}

// NopPacer never pauses.
type NopPacer struct{}

func (NopPacer) Pause(context.Context) {}
