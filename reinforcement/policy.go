package reinforcement

import (
	"fmt"
	"io"

	"coopgrid/grid_world"
)

// Console-oriented views of what a learner has learned. Purely for
// humans watching a run; nothing here feeds back into training.

var dirRunes = map[grid_world.Direction]rune{
	grid_world.Up:    '^',
	grid_world.Down:  'v',
	grid_world.Left:  '<',
	grid_world.Right: '>',
	grid_world.Stay:  '=',
}

// FprintPolicy writes the greedy policy as a grid of direction runes.
// Cells the learner has never updated print as '.'; walls print as '#'.
func FprintPolicy(w io.Writer, l *Learner, rows, cols int, isWall func(grid_world.Cell) bool) {
	snapshot := l.Snapshot()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cell := grid_world.Cell{Row: r, Col: c}
			switch {
			case isWall != nil && isWall(cell):
				fmt.Fprint(w, "# ")
			case len(snapshot[cell]) == 0:
				fmt.Fprint(w, ". ")
			default:
				fmt.Fprintf(w, "%c ", dirRunes[argmax(snapshot[cell])])
			}
		}
		fmt.Fprintln(w)
	}
}

// FprintMaxValues writes max-Q per cell, the learner's state-value view.
func FprintMaxValues(w io.Writer, l *Learner, rows, cols int) {
	total := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			val := l.MaxValue(grid_world.Cell{Row: r, Col: c})
			fmt.Fprintf(w, "%7.2f ", val)
			total += val
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "total: %.2f\n", total)
}

func argmax(vals map[grid_world.Direction]float64) grid_world.Direction {
	best := grid_world.Stay
	bestVal := 0.0
	first := true
	// Fixed iteration order so display is stable run to run.
	for _, d := range grid_world.Directions {
		v, ok := vals[d]
		if !ok {
			continue
		}
		if first || v > bestVal {
			best, bestVal, first = d, v, false
		}
	}
	return best
}
