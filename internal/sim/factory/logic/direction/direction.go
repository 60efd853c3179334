package direction

import "strings"

// Direction is one of the four cardinal facings, ordered clockwise.
type Direction uint8

const (
	Up Direction = iota
	Right
	Down
	Left
)

// All lists the directions in clockwise order starting at Up.
var All = [4]Direction{Up, Right, Down, Left}

func (d Direction) Valid() bool { return d <= Left }

// Rotate turns d clockwise by quarter turns; negative values turn counter-clockwise.
func (d Direction) Rotate(quarters int) Direction {
	q := (int(d) + quarters) % 4
	if q < 0 {
		q += 4
	}
	return Direction(q)
}

// Clockwise is Rotate(1).
func (d Direction) Clockwise() Direction { return d.Rotate(1) }

func (d Direction) Opposite() Direction { return d.Rotate(2) }

// Horizontal reports whether movement along d changes x (Left/Right) rather than y.
func (d Direction) Horizontal() bool { return d == Left || d == Right }

// Sign is -1 for Up/Left and +1 for Right/Down. Screen coordinates: y grows downward.
func (d Direction) Sign() int {
	switch d {
	case Up, Left:
		return -1
	default:
		return 1
	}
}

// Offset returns the unit cell step in direction d.
func (d Direction) Offset() (dx, dy int) {
	if d.Horizontal() {
		return d.Sign(), 0
	}
	return 0, d.Sign()
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Right:
		return "RIGHT"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	default:
		return "?"
	}
}

// Parse accepts the canonical tags plus lower/mixed case variants.
func Parse(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP":
		return Up, true
	case "RIGHT":
		return Right, true
	case "DOWN":
		return Down, true
	case "LEFT":
		return Left, true
	default:
		return Right, false
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, ok := Parse(string(b))
	if !ok {
		return &ParseError{Value: string(b)}
	}
	*d = v
	return nil
}

type ParseError struct{ Value string }

func (e *ParseError) Error() string { return "direction: invalid value " + strings.TrimSpace(e.Value) }
