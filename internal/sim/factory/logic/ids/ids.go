package ids

import (
	"strconv"
	"strings"
)

// CellKey is the persisted key for a grid cell: "{x}x{y}".
func CellKey(x, y int) string {
	return strconv.Itoa(x) + "x" + strconv.Itoa(y)
}

func ParseCellKey(key string) (x, y int, ok bool) {
	xs, ys, found := strings.Cut(key, "x")
	if !found || xs == "" || ys == "" {
		return 0, 0, false
	}
	xv, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	yv, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	return xv, yv, true
}
