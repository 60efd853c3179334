package factory

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"factorygrid.ai/internal/sim/catalogs"
)

type Lifecycle int32

const (
	// Uninitialized: the grid may be restored but ticks and edits are refused.
	Uninitialized Lifecycle = iota
	Ready
)

func (l Lifecycle) String() string {
	if l == Ready {
		return "READY"
	}
	return "UNINITIALIZED"
}

// Engine owns the grid and runs the per-frame update. All grid access goes through
// mu; ticking additionally holds the ticking flag so overlapping ticks are dropped
// instead of queued.
type Engine struct {
	cfg      Config
	catalogs *catalogs.Catalog
	log      *log.Logger

	mu        sync.Mutex
	lifecycle Lifecycle
	cells     map[Coord]Cell
	order     []Coord
	orderOK   bool
	tick      uint64
	stats     Stats

	ticking atomic.Bool
	dropped atomic.Uint64
}

func New(cfg Config, cats *catalogs.Catalog, logger *log.Logger) (*Engine, error) {
	if cats == nil {
		return nil, fmt.Errorf("factory: nil catalog")
	}
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		catalogs: cats,
		log:      logger,
		cells:    map[Coord]Cell{},
		stats:    newStats(),
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Catalog() *catalogs.Catalog { return e.catalogs }

// Start moves the engine from Uninitialized to Ready. It is the single signal that
// external setup (asset loading, layout restore) has finished.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == Ready {
		return ErrAlreadyActive
	}
	e.lifecycle = Ready
	e.logf("engine ready: cells=%d", len(e.cells))
	return nil
}

func (e *Engine) Lifecycle() Lifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle
}

func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}

// sortedCoords returns cell coordinates in row-major order (y, then x). This is the
// iteration order of every per-tick pass, so results never depend on map order.
func (e *Engine) sortedCoords() []Coord {
	if e.orderOK {
		return e.order
	}
	out := e.order[:0]
	for p := range e.cells {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	e.order = out
	e.orderOK = true
	return out
}
