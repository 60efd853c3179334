package factory

// TickLogEntry is the persisted record of one executed tick.
type TickLogEntry struct {
	Tick       uint64         `json:"tick"`
	Elapsed    float64        `json:"elapsed"`
	DurationUS int64          `json:"duration_us"`
	Cycles     map[string]int `json:"cycles,omitempty"`
	Exported   int            `json:"exported"`
	Delivered  int            `json:"delivered"`
	Discarded  int            `json:"discarded"`
	FellOff    int            `json:"fell_off"`
	HandedOff  int            `json:"handed_off"`
	Cells      int            `json:"cells"`
	InFlight   int            `json:"in_flight"`
	Digest     string         `json:"digest"`
}

func NewTickLogEntry(sum TickSummary) TickLogEntry {
	return TickLogEntry{
		Tick:       sum.Tick,
		Elapsed:    sum.Elapsed,
		DurationUS: sum.Duration.Microseconds(),
		Cycles:     sum.Cycles,
		Exported:   sum.Exported,
		Delivered:  sum.Delivered,
		Discarded:  sum.Discarded,
		FellOff:    sum.FellOff,
		HandedOff:  sum.HandedOff,
		Cells:      sum.Cells,
		InFlight:   sum.InFlight,
		Digest:     sum.Digest,
	}
}

// AuditEntry records one grid edit and its outcome. Code is empty on success.
type AuditEntry struct {
	Tick      uint64 `json:"tick"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Kind      string `json:"kind,omitempty"`
	Direction string `json:"direction,omitempty"`
	Code      string `json:"code,omitempty"`
}
