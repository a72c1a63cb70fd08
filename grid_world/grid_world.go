package grid_world

import (
	"fmt"
)

// Cell is a single grid coordinate. Row 0 is the top row when a map is
// printed to a console, so Up decrements the row. Cells are plain value
// types: two cells with equal coordinates are the same cell.
type Cell struct {
	Row, Col int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Direction is one of the five discrete moves available to an agent.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
	Stay
)

// Directions lists every member, in a fixed order suitable for seeded
// random selection.
var Directions = [...]Direction{Up, Down, Left, Right, Stay}

var deltas = [...][2]int{
	Up:    {-1, 0},
	Down:  {1, 0},
	Left:  {0, -1},
	Right: {0, 1},
	Stay:  {0, 0},
}

var names = [...]string{
	Up:    "Up",
	Down:  "Down",
	Left:  "Left",
	Right: "Right",
	Stay:  "Stay",
}

// Delta returns the fixed (row, col) displacement of the direction.
func (d Direction) Delta() (dRow, dCol int) {
	return deltas[d][0], deltas[d][1]
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(names) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return names[d]
}

// ParseDirection maps an action name (Up|Down|Left|Right|Stay) to its
// Direction. Used when decoding externally generated value tables.
func ParseDirection(name string) (Direction, error) {
	for _, d := range Directions {
		if names[d] == name {
			return d, nil
		}
	}
	return Stay, fmt.Errorf("unknown direction %q", name)
}

// Apply returns the candidate cell reached by moving from c, before any
// boundary or wall handling.
func (c Cell) Apply(d Direction) Cell {
	dr, dc := d.Delta()
	return Cell{Row: c.Row + dr, Col: c.Col + dc}
}

// Wall map runes. Anything other than WallRune reads as open ground, so
// maps may use '.' or spaces interchangeably for open cells.
const (
	WallRune = '#'
	OpenRune = '.'
)

// ParseWallMap converts an ASCII map to a wall set plus the grid
// dimensions it implies. Indexing is zero-based from the top-left corner:
// lines[0][0] is cell (0,0). Short rows are padded with open ground;
// column count is the longest line.
func ParseWallMap(lines []string) (walls map[Cell]bool, rows, cols int) {
	walls = map[Cell]bool{}
	rows = len(lines)
	for r, line := range lines {
		if len(line) > cols {
			cols = len(line)
		}
		for col, ch := range line {
			if ch == WallRune {
				walls[Cell{Row: r, Col: col}] = true
			}
		}
	}
	return walls, rows, cols
}
