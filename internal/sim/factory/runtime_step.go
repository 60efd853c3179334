package factory

import (
	"math"
	"time"
)

// Tick advances the whole grid by elapsed simulation ticks: swap every conveyor's
// buffers, move packages, then run production and export. It reports false when
// the tick was not executed: elapsed is not a positive finite number, the engine is
// not Ready, or another Tick is still running.
func (e *Engine) Tick(elapsed float64) (TickSummary, bool) {
	if !(elapsed > 0) || math.IsInf(elapsed, 1) {
		return TickSummary{}, false
	}
	if !e.ticking.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		return TickSummary{}, false
	}
	defer e.ticking.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Ready {
		return TickSummary{}, false
	}
	return e.stepLocked(elapsed), true
}

func (e *Engine) stepLocked(elapsed float64) TickSummary {
	start := time.Now()
	e.tick++
	sum := TickSummary{Tick: e.tick, Elapsed: elapsed}

	order := e.sortedCoords()
	e.swapBuffers(order)
	e.transport(order, elapsed, &sum)
	e.produce(order, elapsed, &sum)

	sum.Cells = len(order)
	sum.InFlight = e.inFlightLocked()
	sum.Digest = e.stateDigestLocked()
	sum.Duration = time.Since(start)
	e.stats.add(sum)
	return sum
}

func (e *Engine) inFlightLocked() int {
	n := 0
	for _, c := range e.cells {
		if conv, ok := c.(*ConveyorCell); ok {
			n += len(conv.active) + len(conv.staged)
		}
	}
	return n
}
