package factory

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("out of bounds")
	ErrCellOccupied  = errors.New("cell occupied")
	ErrNoSuchCell    = errors.New("no such cell")
	ErrUnknownKind   = errors.New("unknown component kind")
	ErrNotBuildable  = errors.New("component kind is not buildable")
	ErrNotReady      = errors.New("engine not ready")
	ErrAlreadyActive = errors.New("engine already started")
)

// CellError reports a refused grid mutation. The grid is unchanged when one is returned.
type CellError struct {
	Op    string
	Coord Coord
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("%s %d,%d: %v", e.Op, e.Coord.X, e.Coord.Y, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// Code maps an engine error to the wire code used by the observer protocol.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfBounds):
		return "E_OUT_OF_BOUNDS"
	case errors.Is(err, ErrCellOccupied):
		return "E_OCCUPIED"
	case errors.Is(err, ErrNoSuchCell):
		return "E_NO_SUCH_CELL"
	case errors.Is(err, ErrUnknownKind):
		return "E_UNKNOWN_KIND"
	case errors.Is(err, ErrNotBuildable):
		return "E_NOT_BUILDABLE"
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrAlreadyActive):
		return "E_NOT_READY"
	default:
		return "E_INTERNAL"
	}
}
