package factory

import (
	convrt "factorygrid.ai/internal/sim/factory/feature/conveyor/runtime"
)

// swapBuffers moves every staged package into its conveyor's active list. It runs
// for all conveyors before any of them moves a package, so a package handed off
// this tick is not moved again until the next one.
func (e *Engine) swapBuffers(order []Coord) {
	for _, p := range order {
		c, ok := e.cells[p].(*ConveyorCell)
		if !ok || len(c.staged) == 0 {
			continue
		}
		c.active = append(c.active, c.staged...)
		c.staged = c.staged[:0]
	}
}

func (e *Engine) transport(order []Coord, elapsed float64, sum *TickSummary) {
	for _, p := range order {
		c, ok := e.cells[p].(*ConveyorCell)
		if !ok || len(c.active) == 0 {
			continue
		}
		e.moveConveyor(c, elapsed, sum)
	}
}

func (e *Engine) moveConveyor(c *ConveyorCell, elapsed float64, sum *TickSummary) {
	horizontal := c.facing.Horizontal()
	sign := c.facing.Sign()
	kept := c.active[:0]
	for _, pkg := range c.active {
		target := convrt.Target(pkg.Anchor.Axis(horizontal), sign)
		pos := pkg.Pos.Axis(horizontal)
		if !convrt.Reached(pos, target, sign) {
			pkg.Pos.SetAxis(horizontal, convrt.Advance(pos, target, sign, elapsed))
			kept = append(kept, pkg)
			continue
		}
		next := e.cells[c.pos.Step(c.facing)]
		switch convrt.ResolveHandOff(neighborOf(next)) {
		case convrt.PassOn:
			pkg.Anchor.SetAxis(horizontal, target)
			dst := next.(*ConveyorCell)
			dst.staged = append(dst.staged, pkg)
			sum.HandedOff++
		case convrt.Deliver:
			dst := next.(*ProducerCell)
			if _, ok := dst.state.Consumption[pkg.Item]; ok {
				dst.state.Consumption[pkg.Item]++
				sum.Delivered++
			} else {
				sum.Discarded++
			}
		default:
			sum.FellOff++
		}
	}
	for i := len(kept); i < len(c.active); i++ {
		c.active[i] = nil
	}
	c.active = kept
}

func neighborOf(c Cell) convrt.Neighbor {
	switch c.(type) {
	case *ConveyorCell:
		return convrt.NeighborConveyor
	case *ProducerCell:
		return convrt.NeighborProducer
	default:
		return convrt.NeighborNone
	}
}
