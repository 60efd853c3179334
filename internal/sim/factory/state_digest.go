package factory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// StateDigest hashes the full grid state (cells, stocks, accumulators and packages
// in transit) in iteration order. Two engines fed the same edits and elapsed values
// report the same digest.
func (e *Engine) StateDigest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateDigestLocked()
}

func (e *Engine) stateDigestLocked() string {
	h := sha256.New()
	var tmp [8]byte
	digestWriteU64(h, &tmp, e.tick)
	for _, p := range e.sortedCoords() {
		digestWriteI64(h, &tmp, int64(p.X))
		digestWriteI64(h, &tmp, int64(p.Y))
		switch c := e.cells[p].(type) {
		case *ProducerCell:
			h.Write([]byte{'P', byte(c.facing)})
			h.Write([]byte(c.recipe.Kind))
			digestWriteF64(h, &tmp, c.state.Accumulated)
			for _, a := range c.recipe.ConsumptionCap {
				digestWriteF64(h, &tmp, c.state.Consumption[a.Resource])
			}
			for _, a := range c.recipe.ProductionCap {
				digestWriteF64(h, &tmp, c.state.Production[a.Resource])
			}
		case *ConveyorCell:
			h.Write([]byte{'C', byte(c.facing)})
			h.Write([]byte(c.kind))
			digestPackages(h, &tmp, c.active)
			digestPackages(h, &tmp, c.staged)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestPackages(h hash.Hash, tmp *[8]byte, pkgs []*Package) {
	digestWriteU64(h, tmp, uint64(len(pkgs)))
	for _, p := range pkgs {
		h.Write([]byte(p.Item))
		digestWriteF64(h, tmp, p.Pos.X)
		digestWriteF64(h, tmp, p.Pos.Y)
		digestWriteF64(h, tmp, p.Anchor.X)
		digestWriteF64(h, tmp, p.Anchor.Y)
	}
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}
