package catalogs

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltin(t *testing.T) {
	c, err := Builtin(nil)
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if got := c.Buildable(); len(got) != 2 || got[0] != "conveyor" || got[1] != "square" {
		t.Fatalf("Buildable=%v", got)
	}
	sq, ok := c.Recipe("square")
	if !ok || !sq.Produces() {
		t.Fatalf("square recipe missing or not producing: %+v", sq)
	}
	if limit, _ := sq.ProductionCap.Get("square"); !math.IsInf(limit, 1) {
		t.Fatalf("square cap=%v want +Inf", limit)
	}
	cur, _ := c.Recipe("cursor")
	if cur.Buildable() {
		t.Fatalf("cursor must not be buildable")
	}
	if c.Digest == "" {
		t.Fatalf("missing digest")
	}
}

func TestBuild_RejectsUndeclaredResource(t *testing.T) {
	cases := []RecipeDef{
		{
			Kind: "smelter", Role: RoleProducer, Tick: 1,
			Consumption: []ItemAmount{{Item: "ore", Amount: 2}},
		},
		{
			Kind: "smelter", Role: RoleProducer, Tick: 1,
			Production:      []ItemAmount{{Item: "bar", Amount: 1}},
			ProductionStock: []ItemAmount{{Item: "ingot", Amount: 3}},
		},
		{Kind: "", Role: RoleProducer},
		{Kind: "x", Role: "MAGIC"},
		{Kind: "x", Role: RoleProducer, Tick: -1},
		{Kind: "belt", Role: RoleConveyor, Tick: 1, Production: []ItemAmount{{Item: "a", Amount: 1}}},
	}
	for i, d := range cases {
		if _, err := NewBuilder().Add(d).Build(); !errors.Is(err, ErrInvalidRecipe) {
			t.Fatalf("case %d: err=%v want ErrInvalidRecipe", i, err)
		}
	}
}

func TestBuild_HooksAndGates(t *testing.T) {
	cycles := 0
	c, err := NewBuilder().
		Add(BuiltinDefs()...).
		OnProduce("square", func(n int) { cycles += n }).
		Gate("square", func() bool { return true }).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, _ := c.Recipe("square")
	r.OnProduce(3)
	if cycles != 3 || r.Gate == nil {
		t.Fatalf("hook/gate not attached: cycles=%d", cycles)
	}

	if _, err := NewBuilder().Add(BuiltinDefs()...).OnProduce("nope", func(int) {}).Build(); !errors.Is(err, ErrInvalidRecipe) {
		t.Fatalf("hook for unknown kind: err=%v", err)
	}
	if _, err := NewBuilder().Add(BuiltinDefs()...).Add(BuiltinDefs()[0]).Build(); !errors.Is(err, ErrInvalidRecipe) {
		t.Fatalf("duplicate kind: err=%v", err)
	}
}

func TestLoad_ConfigRecipes(t *testing.T) {
	c, err := Load("../../../configs/recipes.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sm, ok := c.Recipe("smelter")
	if !ok {
		t.Fatalf("missing smelter")
	}
	if need, _ := sm.Consumption.Get("ore"); need != 2 {
		t.Fatalf("smelter ore consumption=%v", need)
	}
	sq, _ := c.Recipe("square")
	if limit, _ := sq.ProductionCap.Get("square"); !math.IsInf(limit, 1) {
		t.Fatalf("square cap=%v want +Inf", limit)
	}
}

func TestLoad_SchemaRejects(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"not_array.json":  `{"kind":"x"}`,
		"bad_role.json":   `[{"kind":"x","role":"WIZARD"}]`,
		"neg_amount.json": `[{"kind":"x","role":"PRODUCER","production":[{"item":"a","amount":-1}],"production_stock":[{"item":"a","amount":1}]}]`,
		"extra.json":      `[{"kind":"x","role":"TOOL","color":"red"}]`,
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); !errors.Is(err, ErrInvalidRecipe) {
			t.Fatalf("%s: err=%v want ErrInvalidRecipe", name, err)
		}
	}
}

func TestQuantity_JSON(t *testing.T) {
	var q Quantity
	if err := q.UnmarshalJSON([]byte(`"inf"`)); err != nil || !math.IsInf(float64(q), 1) {
		t.Fatalf("inf: q=%v err=%v", q, err)
	}
	if err := q.UnmarshalJSON([]byte(`2.5`)); err != nil || q != 2.5 {
		t.Fatalf("2.5: q=%v err=%v", q, err)
	}
	b, _ := Quantity(math.Inf(1)).MarshalJSON()
	if string(b) != `"inf"` {
		t.Fatalf("MarshalJSON(inf)=%s", b)
	}
}
