package runtime

import (
	"math"

	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

const maxCyclesPerStep = math.MaxInt32

// State is the mutable production state of one producer cell. The stock maps hold
// exactly the keys of the recipe's capacity lists.
type State struct {
	Consumption map[string]float64
	Production  map[string]float64
	Accumulated float64
}

func NewState(r *catalogs.Recipe) State {
	s := State{
		Consumption: make(map[string]float64, len(r.ConsumptionCap)),
		Production:  make(map[string]float64, len(r.ProductionCap)),
	}
	for _, a := range r.ConsumptionCap {
		s.Consumption[a.Resource] = 0
	}
	for _, a := range r.ProductionCap {
		s.Production[a.Resource] = 0
	}
	return s
}

// CanProduce reports whether one more cycle fits: room for every output, enough
// banked input, and the recipe gate (if any).
func CanProduce(r *catalogs.Recipe, s *State) bool {
	for _, a := range r.Production {
		limit, _ := r.ProductionCap.Get(a.Resource)
		if s.Production[a.Resource]+a.Amount > limit {
			return false
		}
	}
	for _, a := range r.Consumption {
		if s.Consumption[a.Resource] < a.Amount {
			return false
		}
	}
	if r.Gate != nil && !r.Gate() {
		return false
	}
	return true
}

// feasibleCycles bounds a batch so that no stock goes negative or over capacity.
func feasibleCycles(r *catalogs.Recipe, s *State) float64 {
	n := math.Inf(1)
	for _, a := range r.Production {
		if a.Amount <= 0 {
			continue
		}
		limit, _ := r.ProductionCap.Get(a.Resource)
		if math.IsInf(limit, 1) {
			continue
		}
		n = math.Min(n, math.Floor((limit-s.Production[a.Resource])/a.Amount))
	}
	for _, a := range r.Consumption {
		if a.Amount <= 0 {
			continue
		}
		n = math.Min(n, math.Floor(s.Consumption[a.Resource]/a.Amount))
	}
	return n
}

// Step adds elapsed to the accumulator and runs as many whole cycles as the
// accumulator and the stock gates allow. It returns the cycles executed.
// A batch is capped at the cycles stock and capacity can cover, so it never
// overdraws an input or overfills an output.
func Step(r *catalogs.Recipe, s *State, elapsed float64) int {
	s.Accumulated += elapsed
	if !r.Produces() {
		return 0
	}
	t := r.TickInterval
	total := 0
	for s.Accumulated >= t && CanProduce(r, s) {
		n := math.Min(math.Floor(s.Accumulated/t), feasibleCycles(r, s))
		n = math.Min(n, maxCyclesPerStep)
		if n < 1 {
			break
		}
		cycles := int(n)
		if r.OnProduce != nil {
			r.OnProduce(cycles)
		}
		for _, a := range r.Consumption {
			s.Consumption[a.Resource] -= a.Amount * n
		}
		for _, a := range r.Production {
			s.Production[a.Resource] += a.Amount * n
		}
		s.Accumulated -= n * t
		total += cycles
	}
	return total
}

// Ready is the CycleReady state: enough accumulated time for at least one cycle.
func Ready(r *catalogs.Recipe, s *State) bool {
	return r.Produces() && s.Accumulated >= r.TickInterval
}

// PickExport returns the first output resource, in declaration order, with at
// least one whole unit in stock.
func PickExport(r *catalogs.Recipe, s *State) (string, bool) {
	for _, a := range r.ProductionCap {
		if s.Production[a.Resource] >= 1 {
			return a.Resource, true
		}
	}
	return "", false
}

// ExportSlot is one neighbor checked for an outbound conveyor: the side it sits on
// and the facing its conveyor must have to qualify.
type ExportSlot struct {
	Side   direction.Direction
	Facing direction.Direction
}

// ExportScan lists the export slots in precedence order: below facing Up, above
// facing Down, right facing Right, left facing Left.
var ExportScan = [4]ExportSlot{
	{Side: direction.Down, Facing: direction.Up},
	{Side: direction.Up, Facing: direction.Down},
	{Side: direction.Right, Facing: direction.Right},
	{Side: direction.Left, Facing: direction.Left},
}
