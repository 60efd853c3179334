package factory

import "time"

// Stats are cumulative counters since the engine was created.
type Stats struct {
	Ticks        uint64            `json:"ticks"`
	DroppedTicks uint64            `json:"dropped_ticks"`
	Cycles       map[string]uint64 `json:"cycles"`

	Exported  uint64 `json:"exported"`
	Delivered uint64 `json:"delivered"`
	// Discarded counts packages that reached a producer without a matching input key.
	Discarded uint64 `json:"discarded"`
	FellOff   uint64 `json:"fell_off"`
	HandedOff uint64 `json:"handed_off"`
}

func newStats() Stats {
	return Stats{Cycles: map[string]uint64{}}
}

func (s *Stats) add(sum TickSummary) {
	s.Ticks++
	for k, n := range sum.Cycles {
		s.Cycles[k] += uint64(n)
	}
	s.Exported += uint64(sum.Exported)
	s.Delivered += uint64(sum.Delivered)
	s.Discarded += uint64(sum.Discarded)
	s.FellOff += uint64(sum.FellOff)
	s.HandedOff += uint64(sum.HandedOff)
}

// TickSummary describes one executed tick.
type TickSummary struct {
	Tick     uint64        `json:"tick"`
	Elapsed  float64       `json:"elapsed"`
	Duration time.Duration `json:"duration_ns"`

	Cycles    map[string]int `json:"cycles,omitempty"`
	Exported  int            `json:"exported"`
	Delivered int            `json:"delivered"`
	Discarded int            `json:"discarded"`
	FellOff   int            `json:"fell_off"`
	HandedOff int            `json:"handed_off"`

	Cells    int `json:"cells"`
	InFlight int `json:"in_flight"`

	// Digest is the state digest taken before the tick's lock was released.
	Digest string `json:"digest"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.DroppedTicks = e.dropped.Load()
	out.Cycles = make(map[string]uint64, len(e.stats.Cycles))
	for k, v := range e.stats.Cycles {
		out.Cycles[k] = v
	}
	return out
}
