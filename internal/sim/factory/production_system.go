package factory

import (
	prodrt "factorygrid.ai/internal/sim/factory/feature/production/runtime"
)

func (e *Engine) produce(order []Coord, elapsed float64, sum *TickSummary) {
	for _, p := range order {
		c, ok := e.cells[p].(*ProducerCell)
		if !ok {
			continue
		}
		if n := prodrt.Step(c.recipe, &c.state, elapsed); n > 0 {
			if sum.Cycles == nil {
				sum.Cycles = map[string]int{}
			}
			sum.Cycles[c.recipe.Kind] += n
		}
		if e.export(c) {
			sum.Exported++
		}
	}
}

// export moves one unit of output onto the first outbound conveyor found. The
// package starts at the producer's coordinate and belongs to the conveyor's staged
// list until the next buffer swap.
func (e *Engine) export(c *ProducerCell) bool {
	dst := e.outbound(c.pos)
	if dst == nil {
		return false
	}
	item, ok := prodrt.PickExport(c.recipe, &c.state)
	if !ok {
		return false
	}
	c.state.Production[item]--
	at := Vec2{X: float64(c.pos.X), Y: float64(c.pos.Y)}
	dst.staged = append(dst.staged, &Package{Item: item, Pos: at, Anchor: at})
	return true
}

func (e *Engine) outbound(p Coord) *ConveyorCell {
	for _, slot := range prodrt.ExportScan {
		conv, ok := e.cells[p.Step(slot.Side)].(*ConveyorCell)
		if ok && conv.facing == slot.Facing {
			return conv
		}
	}
	return nil
}
