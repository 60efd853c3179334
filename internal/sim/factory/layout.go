package factory

import (
	"errors"
	"fmt"
	"math"

	"factorygrid.ai/internal/persistence/snapshot"
	"factorygrid.ai/internal/sim/factory/logic/direction"
	"factorygrid.ai/internal/sim/factory/logic/ids"
)

// RestoreReport lists what Restore applied and what it discarded.
type RestoreReport struct {
	Restored int                `json:"restored"`
	Dropped  []snapshot.Dropped `json:"dropped,omitempty"`
}

// Restore re-inserts a persisted layout through the same checks as Place. It is
// only allowed before Start. Entries with a bad key, an unknown or unbuildable type,
// an out-of-bounds coordinate or a collision are dropped and logged; the rest are
// applied. Producer stocks are restored for the keys the recipe declares.
func (e *Engine) Restore(l snapshot.Layout) (RestoreReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var rep RestoreReport
	if e.lifecycle != Uninitialized {
		return rep, ErrAlreadyActive
	}
	drop := func(key, reason string) {
		rep.Dropped = append(rep.Dropped, snapshot.Dropped{Key: key, Reason: reason})
		e.logf("layout: drop %q: %s", key, reason)
	}
	for _, key := range l.Keys() {
		rec := l[key]
		x, y, ok := ids.ParseCellKey(key)
		if !ok {
			drop(key, "bad key")
			continue
		}
		if rec.Type == "" {
			drop(key, "missing type")
			continue
		}
		dir := DefaultDirection
		if rec.Direction != "" {
			d, ok := direction.Parse(rec.Direction)
			if !ok {
				e.logf("layout: %q: unknown direction %q, using %s", key, rec.Direction, DefaultDirection)
			}
			dir = d
		}
		c, err := e.placeLocked(Coord{X: x, Y: y}, rec.Type, dir)
		if err != nil {
			drop(key, reasonOf(err))
			continue
		}
		if p, ok := c.(*ProducerCell); ok {
			restoreStocks(p, rec)
		}
		rep.Restored++
	}
	return rep, nil
}

func reasonOf(err error) string {
	var ce *CellError
	if errors.As(err, &ce) {
		return ce.Err.Error()
	}
	return err.Error()
}

func restoreStocks(p *ProducerCell, rec snapshot.Record) {
	if rec.TicksDone != nil {
		p.state.Accumulated = sanitize(*rec.TicksDone)
	}
	for k, v := range rec.ConsumptionStock {
		if _, ok := p.state.Consumption[k]; ok {
			p.state.Consumption[k] = sanitize(v)
		}
	}
	for k, v := range rec.ProductionStock {
		if _, ok := p.state.Production[k]; ok {
			p.state.Production[k] = sanitize(v)
		}
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Layout returns the persisted form of the current grid. Packages in transit are
// not part of it.
func (e *Engine) Layout() snapshot.Layout {
	_, l := e.LayoutAt()
	return l
}

// LayoutAt is Layout plus the tick it was taken at, read under one lock.
func (e *Engine) LayoutAt() (uint64, snapshot.Layout) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(snapshot.Layout, len(e.cells))
	for p, c := range e.cells {
		out[ids.CellKey(p.X, p.Y)] = recordOf(c)
	}
	return e.tick, out
}

// ResumeAt sets the tick counter so numbering continues from a saved layout. Only
// allowed before Start.
func (e *Engine) ResumeAt(tick uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle != Uninitialized {
		return ErrAlreadyActive
	}
	e.tick = tick
	return nil
}

func recordOf(c Cell) snapshot.Record {
	switch v := c.(type) {
	case *ProducerCell:
		done := v.state.Accumulated
		return snapshot.Record{
			Type:             v.recipe.Kind,
			Direction:        v.facing.String(),
			TicksDone:        &done,
			ConsumptionStock: copyStock(v.state.Consumption),
			ProductionStock:  copyStock(v.state.Production),
		}
	case *ConveyorCell:
		return snapshot.Record{Type: v.kind, Direction: v.facing.String()}
	default:
		panic(fmt.Sprintf("factory: unknown cell type %T", c))
	}
}

func copyStock(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
