package factory

import (
	"context"
	"time"
)

// Run drives Tick from a wall-clock ticker at FrameRateHz until ctx is done. Wall
// time is converted to simulation ticks with TicksPerSecond and clamped to
// MaxElapsed per frame. onFrame, when set, sees every executed tick.
func (e *Engine) Run(ctx context.Context, onFrame func(TickSummary)) error {
	interval := time.Second / time.Duration(e.cfg.FrameRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds() * e.cfg.TicksPerSecond
			last = now
			if elapsed > e.cfg.MaxElapsed {
				elapsed = e.cfg.MaxElapsed
			}
			sum, ok := e.Tick(elapsed)
			if ok && onFrame != nil {
				onFrame(sum)
			}
		}
	}
}
