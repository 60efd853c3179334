package catalogs

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed recipes.schema.json
var recipesSchemaJSON []byte

const recipesSchemaURL = "https://factorygrid.ai/schemas/recipes.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recipesSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(recipesSchemaURL, bytes.NewReader(recipesSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(recipesSchemaURL)
	})
	return schema, schemaErr
}

// Load reads a recipes JSON file, validates it against the embedded schema and
// builds a catalog. Hooks and gates are attached through LoadWith.
func Load(path string) (*Catalog, error) {
	return LoadWith(path, NewBuilder())
}

// LoadWith is Load with a pre-configured builder (hooks/gates registered by the caller).
func LoadWith(path string, b *Builder) (*Catalog, error) {
	defs, err := ReadDefs(path)
	if err != nil {
		return nil, err
	}
	return b.Add(defs...).Build()
}

func ReadDefs(path string) ([]RecipeDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	defs, err := ParseDefs(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return defs, nil
}

// ParseDefs validates raw JSON against the recipes schema and decodes it.
func ParseDefs(raw []byte) ([]RecipeDef, error) {
	s, err := recipesSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipe, err)
	}
	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// BuiltinDefs mirrors the stock factory layer: two tools, the conveyor and the
// square producer with unbounded output storage.
func BuiltinDefs() []RecipeDef {
	return []RecipeDef{
		{Kind: "cursor", Role: RoleTool, Name: "Cursor", Description: "Use this to move."},
		{Kind: "rotate", Role: RoleTool, Name: "Rotate", Description: "Use this to rotate components."},
		{Kind: "conveyor", Role: RoleConveyor, Name: "Conveyor", Description: "Moves 1 item per tick.", Tick: 1},
		{
			Kind:            "square",
			Role:            RoleProducer,
			Name:            "???",
			Description:     "Produces 1 square every 1 tick.",
			Tick:            1,
			Production:      []ItemAmount{{Item: "square", Amount: 1}},
			ProductionStock: []ItemAmount{{Item: "square", Amount: Quantity(math.Inf(1))}},
		},
	}
}

// Builtin builds the stock catalog with the given builder (nil = no hooks).
func Builtin(b *Builder) (*Catalog, error) {
	if b == nil {
		b = NewBuilder()
	}
	return b.Add(BuiltinDefs()...).Build()
}
