package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidRecipe is returned (wrapped) when a recipe definition is inconsistent.
// It is a startup error: a catalog that fails to build never reaches the engine.
var ErrInvalidRecipe = errors.New("invalid recipe")

type Role string

const (
	RoleProducer Role = "PRODUCER"
	RoleConveyor Role = "CONVEYOR"
	RoleTool     Role = "TOOL"
)

// Quantity is a non-negative amount. In catalog JSON an unbounded capacity is
// written as the string "inf".
type Quantity float64

func (q Quantity) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(q), 1) {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(q))
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "inf", "infinity", "+inf":
			*q = Quantity(math.Inf(1))
			return nil
		}
		return fmt.Errorf("quantity: invalid string %q", s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	*q = Quantity(f)
	return nil
}

type ItemAmount struct {
	Item   string   `json:"item"`
	Amount Quantity `json:"amount"`
}

// RecipeDef is the file form of a recipe. Resource lists are ordered; the order is
// the declaration order used for export precedence.
type RecipeDef struct {
	Kind        string `json:"kind"`
	Role        Role   `json:"role"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Tick is the number of simulation ticks per production cycle; 0 = never produces.
	Tick float64 `json:"tick"`

	Consumption      []ItemAmount `json:"consumption,omitempty"`
	ConsumptionStock []ItemAmount `json:"consumption_stock,omitempty"`
	Production       []ItemAmount `json:"production,omitempty"`
	ProductionStock  []ItemAmount `json:"production_stock,omitempty"`
}

type ResourceAmount struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
}

// Amounts is an ordered resource -> amount list.
type Amounts []ResourceAmount

func (a Amounts) Get(resource string) (float64, bool) {
	for _, r := range a {
		if r.Resource == resource {
			return r.Amount, true
		}
	}
	return 0, false
}

func (a Amounts) Keys() []string {
	out := make([]string, 0, len(a))
	for _, r := range a {
		out = append(out, r.Resource)
	}
	return out
}

// Recipe is the validated, immutable runtime form of a RecipeDef. Callers must not
// modify the Amounts slices.
type Recipe struct {
	Kind        string
	Role        Role
	Name        string
	Description string

	TickInterval float64

	Consumption    Amounts
	ConsumptionCap Amounts
	Production     Amounts
	ProductionCap  Amounts

	// OnProduce runs once per executed production step with the number of cycles
	// completed. It may only touch state outside the grid (statistics, counters).
	OnProduce func(cycles int)
	// Gate is evaluated in addition to the stock checks.
	Gate func() bool
}

func (r *Recipe) Buildable() bool { return r.Role == RoleProducer || r.Role == RoleConveyor }

func (r *Recipe) IsConveyor() bool { return r.Role == RoleConveyor }

func (r *Recipe) Produces() bool { return r.Role == RoleProducer && r.TickInterval > 0 }

type Catalog struct {
	byKind map[string]*Recipe
	order  []string
	defs   []RecipeDef
	Digest string
}

func (c *Catalog) Recipe(kind string) (*Recipe, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.byKind[kind]
	return r, ok
}

// Kinds returns every kind in declaration order.
func (c *Catalog) Kinds() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Buildable returns the kinds that can be placed on the grid, in declaration order.
func (c *Catalog) Buildable() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.order))
	for _, k := range c.order {
		if c.byKind[k].Buildable() {
			out = append(out, k)
		}
	}
	return out
}

// Defs returns a copy of the definitions the catalog was built from.
func (c *Catalog) Defs() []RecipeDef {
	if c == nil {
		return nil
	}
	return append([]RecipeDef(nil), c.defs...)
}

// Builder assembles a Catalog from definitions plus optional code-side hooks.
type Builder struct {
	defs  []RecipeDef
	hooks map[string]func(int)
	gates map[string]func() bool
}

func NewBuilder() *Builder {
	return &Builder{hooks: map[string]func(int){}, gates: map[string]func() bool{}}
}

func (b *Builder) Add(defs ...RecipeDef) *Builder {
	b.defs = append(b.defs, defs...)
	return b
}

func (b *Builder) OnProduce(kind string, fn func(cycles int)) *Builder {
	b.hooks[kind] = fn
	return b
}

func (b *Builder) Gate(kind string, fn func() bool) *Builder {
	b.gates[kind] = fn
	return b
}

func (b *Builder) Build() (*Catalog, error) {
	c := &Catalog{byKind: map[string]*Recipe{}}
	for _, d := range b.defs {
		r, err := compile(d)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byKind[r.Kind]; dup {
			return nil, fmt.Errorf("%w: duplicate kind %q", ErrInvalidRecipe, r.Kind)
		}
		c.byKind[r.Kind] = r
		c.order = append(c.order, r.Kind)
		c.defs = append(c.defs, d)
	}
	for _, kind := range sortedKeys(b.hooks) {
		r, ok := c.byKind[kind]
		if !ok {
			return nil, fmt.Errorf("%w: hook for unknown kind %q", ErrInvalidRecipe, kind)
		}
		r.OnProduce = b.hooks[kind]
	}
	for _, kind := range sortedKeys(b.gates) {
		r, ok := c.byKind[kind]
		if !ok {
			return nil, fmt.Errorf("%w: gate for unknown kind %q", ErrInvalidRecipe, kind)
		}
		r.Gate = b.gates[kind]
	}
	raw, _ := json.Marshal(c.defs)
	c.Digest = sha256Hex(raw)
	return c, nil
}

func compile(d RecipeDef) (*Recipe, error) {
	kind := strings.TrimSpace(d.Kind)
	if kind == "" {
		return nil, fmt.Errorf("%w: empty kind", ErrInvalidRecipe)
	}
	switch d.Role {
	case RoleProducer, RoleConveyor, RoleTool:
	default:
		return nil, fmt.Errorf("%w: %s: unknown role %q", ErrInvalidRecipe, kind, d.Role)
	}
	if d.Tick < 0 || math.IsNaN(d.Tick) || math.IsInf(d.Tick, 0) {
		return nil, fmt.Errorf("%w: %s: tick must be finite and >= 0", ErrInvalidRecipe, kind)
	}
	r := &Recipe{
		Kind:         kind,
		Role:         d.Role,
		Name:         d.Name,
		Description:  d.Description,
		TickInterval: d.Tick,
	}
	var err error
	if r.Consumption, err = amounts(kind, "consumption", d.Consumption, false); err != nil {
		return nil, err
	}
	if r.ConsumptionCap, err = amounts(kind, "consumption_stock", d.ConsumptionStock, true); err != nil {
		return nil, err
	}
	if r.Production, err = amounts(kind, "production", d.Production, false); err != nil {
		return nil, err
	}
	if r.ProductionCap, err = amounts(kind, "production_stock", d.ProductionStock, true); err != nil {
		return nil, err
	}
	if d.Role != RoleProducer {
		if len(r.Consumption)+len(r.ConsumptionCap)+len(r.Production)+len(r.ProductionCap) > 0 {
			return nil, fmt.Errorf("%w: %s: only producers may declare resources", ErrInvalidRecipe, kind)
		}
		return r, nil
	}
	for _, a := range r.Consumption {
		if _, ok := r.ConsumptionCap.Get(a.Resource); !ok {
			return nil, fmt.Errorf("%w: %s: consumption of %q has no consumption_stock entry", ErrInvalidRecipe, kind, a.Resource)
		}
	}
	for _, a := range r.Production {
		if _, ok := r.ProductionCap.Get(a.Resource); !ok {
			return nil, fmt.Errorf("%w: %s: production of %q has no production_stock entry", ErrInvalidRecipe, kind, a.Resource)
		}
	}
	return r, nil
}

func amounts(kind, field string, in []ItemAmount, allowInf bool) (Amounts, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(Amounts, 0, len(in))
	seen := map[string]bool{}
	for _, ia := range in {
		item := strings.TrimSpace(ia.Item)
		if item == "" {
			return nil, fmt.Errorf("%w: %s: %s: empty item", ErrInvalidRecipe, kind, field)
		}
		if seen[item] {
			return nil, fmt.Errorf("%w: %s: %s: duplicate item %q", ErrInvalidRecipe, kind, field, item)
		}
		seen[item] = true
		v := float64(ia.Amount)
		if v < 0 || math.IsNaN(v) || (math.IsInf(v, 1) && !allowInf) {
			return nil, fmt.Errorf("%w: %s: %s: bad amount for %q", ErrInvalidRecipe, kind, field, item)
		}
		out = append(out, ResourceAmount{Resource: item, Amount: v})
	}
	return out, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
