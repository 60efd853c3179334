package factory

import (
	"math"
	"testing"

	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

func smelterDef() catalogs.RecipeDef {
	return catalogs.RecipeDef{
		Kind:             "smelter",
		Role:             catalogs.RoleProducer,
		Tick:             1,
		Consumption:      []catalogs.ItemAmount{{Item: "ore", Amount: 2}},
		ConsumptionStock: []catalogs.ItemAmount{{Item: "ore", Amount: 5}},
		Production:       []catalogs.ItemAmount{{Item: "bar", Amount: 1}},
		ProductionStock:  []catalogs.ItemAmount{{Item: "bar", Amount: 3}},
	}
}

func sinkDef() catalogs.RecipeDef {
	return catalogs.RecipeDef{
		Kind:             "sink",
		Role:             catalogs.RoleProducer,
		ConsumptionStock: []catalogs.ItemAmount{{Item: "square", Amount: catalogs.Quantity(math.Inf(1))}},
	}
}

func testCatalog(t *testing.T, b *catalogs.Builder) *catalogs.Catalog {
	t.Helper()
	if b == nil {
		b = catalogs.NewBuilder()
	}
	cats, err := catalogs.Builtin(b.Add(smelterDef(), sinkDef()))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cats
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{}, testCatalog(t, nil), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e
}

func mustPlace(t *testing.T, e *Engine, x, y int, kind string, dir direction.Direction) {
	t.Helper()
	if err := e.Place(x, y, kind, dir); err != nil {
		t.Fatalf("place %s at %d,%d: %v", kind, x, y, err)
	}
}

func mustTick(t *testing.T, e *Engine, elapsed float64) TickSummary {
	t.Helper()
	sum, ok := e.Tick(elapsed)
	if !ok {
		t.Fatalf("tick %v was not executed", elapsed)
	}
	return sum
}

func conveyorAt(t *testing.T, e *Engine, x, y int) *ConveyorCell {
	t.Helper()
	c, ok := e.cells[Coord{X: x, Y: y}].(*ConveyorCell)
	if !ok {
		t.Fatalf("no conveyor at %d,%d", x, y)
	}
	return c
}

func producerAt(t *testing.T, e *Engine, x, y int) *ProducerCell {
	t.Helper()
	c, ok := e.cells[Coord{X: x, Y: y}].(*ProducerCell)
	if !ok {
		t.Fatalf("no producer at %d,%d", x, y)
	}
	return c
}
