package factory

import (
	"errors"
	"reflect"
	"testing"

	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory/logic/direction"
)

func TestPlaceGet_ZeroStocks(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "smelter", direction.Up)

	got, ok := e.GetCell(0, 0)
	if !ok {
		t.Fatalf("expected cell")
	}
	if got.Kind != "smelter" || got.Direction != direction.Up || got.Conveyor {
		t.Fatalf("cell=%+v", got)
	}
	wantIn := catalogs.Amounts{{Resource: "ore", Amount: 0}}
	wantOut := catalogs.Amounts{{Resource: "bar", Amount: 0}}
	if !reflect.DeepEqual(got.ConsumptionStock, wantIn) || !reflect.DeepEqual(got.ProductionStock, wantOut) {
		t.Fatalf("stocks in=%v out=%v", got.ConsumptionStock, got.ProductionStock)
	}
	if got.AccumulatedTicks != 0 {
		t.Fatalf("accumulated=%v", got.AccumulatedTicks)
	}

	mustPlace(t, e, 1, 0, "conveyor", direction.Left)
	conv, ok := e.GetCell(1, 0)
	if !ok || !conv.Conveyor || conv.Direction != direction.Left || len(conv.Active)+len(conv.Staged) != 0 {
		t.Fatalf("conveyor=%+v ok=%v", conv, ok)
	}
	if _, ok := e.GetCell(2, 2); ok {
		t.Fatalf("expected empty cell")
	}
}

func TestPlace_InvalidDirectionUsesDefault(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "square", direction.Direction(9))
	got, _ := e.GetCell(0, 0)
	if got.Direction != DefaultDirection {
		t.Fatalf("direction=%v want %v", got.Direction, DefaultDirection)
	}
}

func TestPlace_Rejections(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, -6, -6, "conveyor", direction.Right)
	mustPlace(t, e, 5, 5, "conveyor", direction.Right)
	before := e.Cells()

	cases := []struct {
		name string
		x, y int
		kind string
		want error
	}{
		{"right edge", 6, 0, "conveyor", ErrOutOfBounds},
		{"left edge", -7, 0, "conveyor", ErrOutOfBounds},
		{"bottom edge", 0, 6, "square", ErrOutOfBounds},
		{"top edge", 0, -7, "square", ErrOutOfBounds},
		{"occupied", 5, 5, "square", ErrCellOccupied},
		{"unknown kind", 0, 0, "teleporter", ErrUnknownKind},
		{"tool", 0, 0, "cursor", ErrNotBuildable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.Place(tc.x, tc.y, tc.kind, direction.Up)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			var ce *CellError
			if !errors.As(err, &ce) || ce.Op != "place" || ce.Coord != (Coord{X: tc.x, Y: tc.y}) {
				t.Fatalf("cell error=%+v", ce)
			}
		})
	}
	if after := e.Cells(); !reflect.DeepEqual(before, after) {
		t.Fatalf("grid changed:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestRotateRemove_EmptyCellNeverMutates(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "square", direction.Down)
	before := e.Cells()

	for i := 0; i < 2; i++ {
		if err := e.Rotate(1, 1); !errors.Is(err, ErrNoSuchCell) {
			t.Fatalf("rotate err=%v", err)
		}
		if err := e.Remove(1, 1); !errors.Is(err, ErrNoSuchCell) {
			t.Fatalf("remove err=%v", err)
		}
		if err := e.Rotate(99, 99); !errors.Is(err, ErrNoSuchCell) {
			t.Fatalf("rotate out of bounds err=%v", err)
		}
	}
	if after := e.Cells(); !reflect.DeepEqual(before, after) {
		t.Fatalf("grid changed: before=%+v after=%+v", before, after)
	}
}

func TestRotate_Clockwise(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "conveyor", direction.Up)
	want := []direction.Direction{direction.Right, direction.Down, direction.Left, direction.Up}
	for i, w := range want {
		if err := e.Rotate(0, 0); err != nil {
			t.Fatalf("rotate: %v", err)
		}
		got, _ := e.GetCell(0, 0)
		if got.Direction != w {
			t.Fatalf("rotation %d: got %v want %v", i+1, got.Direction, w)
		}
	}
}

func TestRotate_FourTimesIsIdentity(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "smelter", direction.Left)
	producerAt(t, e, 0, 0).state.Consumption["ore"] = 3
	before, _ := e.GetCell(0, 0)
	for i := 0; i < 4; i++ {
		if err := e.Rotate(0, 0); err != nil {
			t.Fatalf("rotate: %v", err)
		}
	}
	after, _ := e.GetCell(0, 0)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("before=%+v after=%+v", before, after)
	}
}

func TestRemove_DiscardsPackages(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 0, 0, "conveyor", direction.Right)
	c := conveyorAt(t, e, 0, 0)
	c.active = append(c.active, &Package{Item: "square"})
	c.staged = append(c.staged, &Package{Item: "square"})

	if err := e.Remove(0, 0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := e.GetCell(0, 0); ok {
		t.Fatalf("cell still present")
	}
	if e.CellCount() != 0 {
		t.Fatalf("cells=%d", e.CellCount())
	}
	mustPlace(t, e, 0, 0, "conveyor", direction.Right)
	if got, _ := e.GetCell(0, 0); len(got.Active)+len(got.Staged) != 0 {
		t.Fatalf("new conveyor inherited packages: %+v", got)
	}
}

func TestCells_RowMajorOrder(t *testing.T) {
	e := newTestEngine(t)
	mustPlace(t, e, 2, 1, "conveyor", direction.Right)
	mustPlace(t, e, -3, 1, "conveyor", direction.Right)
	mustPlace(t, e, 4, -2, "square", direction.Right)
	mustPlace(t, e, 0, 0, "square", direction.Right)

	var got []Coord
	for _, c := range e.Cells() {
		got = append(got, Coord{X: c.X, Y: c.Y})
	}
	want := []Coord{{X: 4, Y: -2}, {X: 0, Y: 0}, {X: -3, Y: 1}, {X: 2, Y: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order=%v want %v", got, want)
	}
}

func TestMutations_RefusedBeforeStart(t *testing.T) {
	e, err := New(Config{}, testCatalog(t, nil), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := e.Place(0, 0, "square", direction.Right); !errors.Is(err, ErrNotReady) {
		t.Fatalf("place err=%v", err)
	}
	if err := e.Rotate(0, 0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("rotate err=%v", err)
	}
	if err := e.Remove(0, 0); !errors.Is(err, ErrNotReady) {
		t.Fatalf("remove err=%v", err)
	}
	if _, ok := e.Tick(1); ok {
		t.Fatalf("tick executed before start")
	}
	if e.Lifecycle() != Uninitialized {
		t.Fatalf("lifecycle=%v", e.Lifecycle())
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second start err=%v", err)
	}
}

func TestNew_NilCatalog(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCode(t *testing.T) {
	e := newTestEngine(t)
	err := e.Place(100, 0, "square", direction.Right)
	if got := Code(err); got != "E_OUT_OF_BOUNDS" {
		t.Fatalf("code=%q", got)
	}
	if got := Code(e.Rotate(0, 0)); got != "E_NO_SUCH_CELL" {
		t.Fatalf("code=%q", got)
	}
	if got := Code(nil); got != "" {
		t.Fatalf("code=%q", got)
	}
	if got := Code(errors.New("boom")); got != "E_INTERNAL" {
		t.Fatalf("code=%q", got)
	}
}

func TestApply_ReportsTick(t *testing.T) {
	e := newTestEngine(t)
	tick, err := e.Apply(Edit{Action: EditPlace, X: 0, Y: 0, Kind: "conveyor", Dir: direction.Down})
	if err != nil || tick != 0 {
		t.Fatalf("place tick=%d err=%v", tick, err)
	}
	mustTick(t, e, 1)
	mustTick(t, e, 1)
	tick, err = e.Apply(Edit{Action: EditRotate, X: 0, Y: 0})
	if err != nil || tick != 2 {
		t.Fatalf("rotate tick=%d err=%v", tick, err)
	}
	if c, _ := e.GetCell(0, 0); c.Direction != direction.Left {
		t.Fatalf("direction=%v", c.Direction)
	}
	if _, err := e.Apply(Edit{Action: EditRemove, X: 3, Y: 3}); !errors.Is(err, ErrNoSuchCell) {
		t.Fatalf("remove err=%v", err)
	}
	if _, err := e.Apply(Edit{Action: "PAINT"}); err == nil || Code(err) != "E_INTERNAL" {
		t.Fatalf("unknown action err=%v", err)
	}
	if _, err := e.Apply(Edit{Action: EditRemove, X: 0, Y: 0}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if e.CellCount() != 0 {
		t.Fatalf("cells=%d", e.CellCount())
	}
}
