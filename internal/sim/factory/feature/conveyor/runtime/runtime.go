package runtime

import "math"

// Target is the boundary a package must reach on the current conveyor before it
// can be handed off: one cell from its anchor along the direction of travel.
func Target(anchor float64, sign int) float64 { return anchor + float64(sign) }

// Reached reports whether pos has reached or passed target moving along sign.
func Reached(pos, target float64, sign int) bool {
	s := float64(sign)
	return pos*s >= target*s
}

// Advance moves pos toward target by at most elapsed, never past target. A single
// call therefore moves a package at most one cell, whatever elapsed is.
func Advance(pos, target float64, sign int, elapsed float64) float64 {
	if elapsed <= 0 {
		return pos
	}
	return pos + float64(sign)*math.Min(math.Abs(target-pos), elapsed)
}

type Neighbor int

const (
	NeighborNone Neighbor = iota
	NeighborConveyor
	NeighborProducer
)

type HandOff int

const (
	// FallOff destroys the package at an open edge.
	FallOff HandOff = iota
	// PassOn stages the package on the neighbor conveyor for the next tick.
	PassOn
	// Deliver credits the neighbor producer's input stock and destroys the package.
	Deliver
)

func ResolveHandOff(n Neighbor) HandOff {
	switch n {
	case NeighborConveyor:
		return PassOn
	case NeighborProducer:
		return Deliver
	default:
		return FallOff
	}
}
