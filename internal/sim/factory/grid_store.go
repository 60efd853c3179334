package factory

import (
	"fmt"

	"factorygrid.ai/internal/sim/catalogs"
	prodrt "factorygrid.ai/internal/sim/factory/feature/production/runtime"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

// Edit actions, as written to the audit log.
const (
	EditPlace  = "PLACE"
	EditRotate = "ROTATE"
	EditRemove = "REMOVE"
)

// Edit is one grid mutation. Dir is only read by EditPlace.
type Edit struct {
	Action string
	X, Y   int
	Kind   string
	Dir    direction.Direction
}

// Apply performs ed and returns the tick it was applied after, read under the
// same lock as the mutation.
func (e *Engine) Apply(ed Edit) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := Coord{X: ed.X, Y: ed.Y}
	var err error
	switch ed.Action {
	case EditPlace:
		err = e.placeChecked(p, ed.Kind, ed.Dir)
	case EditRotate:
		err = e.rotateLocked(p)
	case EditRemove:
		err = e.removeLocked(p)
	default:
		err = fmt.Errorf("factory: unknown edit action %q", ed.Action)
	}
	return e.tick, err
}

// Place puts a new component of kind at (x, y) facing dir.
func (e *Engine) Place(x, y int, kind string, dir direction.Direction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeChecked(Coord{X: x, Y: y}, kind, dir)
}

func (e *Engine) placeChecked(p Coord, kind string, dir direction.Direction) error {
	if e.lifecycle != Ready {
		return &CellError{Op: "place", Coord: p, Err: ErrNotReady}
	}
	_, err := e.placeLocked(p, kind, dir)
	return err
}

func (e *Engine) placeLocked(p Coord, kind string, dir direction.Direction) (Cell, error) {
	if !e.cfg.InBounds(p) {
		return nil, &CellError{Op: "place", Coord: p, Err: ErrOutOfBounds}
	}
	if _, ok := e.cells[p]; ok {
		return nil, &CellError{Op: "place", Coord: p, Err: ErrCellOccupied}
	}
	r, ok := e.catalogs.Recipe(kind)
	if !ok {
		return nil, &CellError{Op: "place", Coord: p, Err: ErrUnknownKind}
	}
	if !r.Buildable() {
		return nil, &CellError{Op: "place", Coord: p, Err: ErrNotBuildable}
	}
	if !dir.Valid() {
		dir = DefaultDirection
	}
	c := newCell(p, r, dir)
	e.cells[p] = c
	e.orderOK = false
	return c, nil
}

func newCell(p Coord, r *catalogs.Recipe, dir direction.Direction) Cell {
	if r.IsConveyor() {
		return &ConveyorCell{pos: p, facing: dir, kind: r.Kind}
	}
	return &ProducerCell{pos: p, facing: dir, recipe: r, state: prodrt.NewState(r)}
}

// Rotate turns the component at (x, y) a quarter turn clockwise. Conveyors use the
// new facing from the next transport pass on, including for packages already on them.
func (e *Engine) Rotate(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotateLocked(Coord{X: x, Y: y})
}

func (e *Engine) rotateLocked(p Coord) error {
	if e.lifecycle != Ready {
		return &CellError{Op: "rotate", Coord: p, Err: ErrNotReady}
	}
	switch c := e.cells[p].(type) {
	case *ProducerCell:
		c.facing = c.facing.Clockwise()
	case *ConveyorCell:
		c.facing = c.facing.Clockwise()
	case nil:
		return &CellError{Op: "rotate", Coord: p, Err: ErrNoSuchCell}
	}
	return nil
}

// Remove deletes the component at (x, y). A conveyor's packages, active and
// staged, are discarded with it.
func (e *Engine) Remove(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(Coord{X: x, Y: y})
}

func (e *Engine) removeLocked(p Coord) error {
	if e.lifecycle != Ready {
		return &CellError{Op: "remove", Coord: p, Err: ErrNotReady}
	}
	c, ok := e.cells[p]
	if !ok {
		return &CellError{Op: "remove", Coord: p, Err: ErrNoSuchCell}
	}
	if conv, ok := c.(*ConveyorCell); ok {
		conv.active = nil
		conv.staged = nil
	}
	delete(e.cells, p)
	e.orderOK = false
	return nil
}

// GetCell returns a copy of the cell at (x, y), if any.
func (e *Engine) GetCell(x, y int) (CellSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cells[Coord{X: x, Y: y}]
	if !ok {
		return CellSnapshot{}, false
	}
	return snapshotCell(c), true
}

// Cells returns copies of every cell in row-major order.
func (e *Engine) Cells() []CellSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	order := e.sortedCoords()
	out := make([]CellSnapshot, 0, len(order))
	for _, p := range order {
		out = append(out, snapshotCell(e.cells[p]))
	}
	return out
}

func (e *Engine) CellCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cells)
}
