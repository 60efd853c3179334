package factory

import (
	"factorygrid.ai/internal/sim/catalogs"
	prodrt "factorygrid.ai/internal/sim/factory/feature/production/runtime"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

// DefaultDirection is the facing used when a caller does not choose one.
const DefaultDirection = direction.Right

type Coord struct {
	X int
	Y int
}

func (c Coord) Step(d direction.Direction) Coord {
	dx, dy := d.Offset()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Vec2 is a fractional grid position in cell units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Axis(horizontal bool) float64 {
	if horizontal {
		return v.X
	}
	return v.Y
}

func (v *Vec2) SetAxis(horizontal bool, val float64) {
	if horizontal {
		v.X = val
	} else {
		v.Y = val
	}
}

// Package is one item in transit. Ownership is implied by the list holding it:
// a conveyor's active list (owner) or its staged list (destination).
type Package struct {
	Item   string
	Pos    Vec2
	Anchor Vec2
}

// Cell is the tagged union of grid contents: *ProducerCell or *ConveyorCell.
type Cell interface {
	cell()
	Coord() Coord
	Facing() direction.Direction
}

type ProducerCell struct {
	pos    Coord
	facing direction.Direction
	recipe *catalogs.Recipe
	state  prodrt.State
}

func (*ProducerCell) cell()                         {}
func (c *ProducerCell) Coord() Coord                { return c.pos }
func (c *ProducerCell) Facing() direction.Direction { return c.facing }
func (c *ProducerCell) Kind() string                { return c.recipe.Kind }

type ConveyorCell struct {
	pos    Coord
	facing direction.Direction
	kind   string
	active []*Package
	staged []*Package
}

func (*ConveyorCell) cell()                         {}
func (c *ConveyorCell) Coord() Coord                { return c.pos }
func (c *ConveyorCell) Facing() direction.Direction { return c.facing }
func (c *ConveyorCell) Kind() string                { return c.kind }

type PackageSnapshot struct {
	Item   string `json:"item"`
	Pos    Vec2   `json:"pos"`
	Anchor Vec2   `json:"anchor"`
}

// CellSnapshot is a read-only copy of one cell for rendering and inspection.
type CellSnapshot struct {
	X         int                 `json:"x"`
	Y         int                 `json:"y"`
	Kind      string              `json:"kind"`
	Direction direction.Direction `json:"direction"`
	Conveyor  bool                `json:"conveyor"`

	ConsumptionStock catalogs.Amounts `json:"consumption_stock,omitempty"`
	ProductionStock  catalogs.Amounts `json:"production_stock,omitempty"`
	AccumulatedTicks float64          `json:"accumulated_ticks,omitempty"`

	Active []PackageSnapshot `json:"active,omitempty"`
	Staged []PackageSnapshot `json:"staged,omitempty"`
}

func snapshotCell(c Cell) CellSnapshot {
	switch v := c.(type) {
	case *ProducerCell:
		return CellSnapshot{
			X:                v.pos.X,
			Y:                v.pos.Y,
			Kind:             v.recipe.Kind,
			Direction:        v.facing,
			ConsumptionStock: orderedStock(v.recipe.ConsumptionCap, v.state.Consumption),
			ProductionStock:  orderedStock(v.recipe.ProductionCap, v.state.Production),
			AccumulatedTicks: v.state.Accumulated,
		}
	case *ConveyorCell:
		return CellSnapshot{
			X:         v.pos.X,
			Y:         v.pos.Y,
			Kind:      v.kind,
			Direction: v.facing,
			Conveyor:  true,
			Active:    snapshotPackages(v.active),
			Staged:    snapshotPackages(v.staged),
		}
	default:
		panic("factory: unknown cell type")
	}
}

func orderedStock(keys catalogs.Amounts, stock map[string]float64) catalogs.Amounts {
	out := make(catalogs.Amounts, 0, len(keys))
	for _, k := range keys {
		out = append(out, catalogs.ResourceAmount{Resource: k.Resource, Amount: stock[k.Resource]})
	}
	return out
}

func snapshotPackages(in []*Package) []PackageSnapshot {
	if len(in) == 0 {
		return nil
	}
	out := make([]PackageSnapshot, 0, len(in))
	for _, p := range in {
		out = append(out, PackageSnapshot{Item: p.Item, Pos: p.Pos, Anchor: p.Anchor})
	}
	return out
}
