package grid_world

// Environment is a pure transition function over a fixed grid. It holds no
// mutable state of its own: the wall lookup is injected so a caller can
// overlay per-episode opened walls without the environment knowing about
// episodes. Step may be called concurrently on a shared instance.
//
// Boundary policy: candidate cells are clamped to the grid,
// [0,rows-1] x [0,cols-1]. There is no wrap-around.
type Environment struct {
	Rows, Cols int
	// StepPenalty is the reward for any non-terminal transition; strictly
	// negative in sane configurations.
	StepPenalty float64
	// Goal, when non-nil, makes transitions landing on it terminal with
	// GoalReward instead of StepPenalty.
	Goal       *Cell
	GoalReward float64
	// IsWall reports whether a cell currently blocks movement. May be nil
	// for a wall-less grid.
	IsWall func(Cell) bool
}

// Step resolves a single move: clamp the candidate to the grid, refuse to
// enter walls (the agent stays put), and report terminality against the
// configured goal.
func (env *Environment) Step(cell Cell, dir Direction) (next Cell, reward float64, terminal bool) {
	next = env.clamp(cell.Apply(dir))
	if env.IsWall != nil && env.IsWall(next) {
		next = cell
	}
	if env.Goal != nil && next == *env.Goal {
		return next, env.GoalReward, true
	}
	return next, env.StepPenalty, false
}

// Contains reports whether the cell lies on the grid.
func (env *Environment) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < env.Rows && c.Col >= 0 && c.Col < env.Cols
}

func (env *Environment) clamp(c Cell) Cell {
	if c.Row < 0 {
		c.Row = 0
	}
	if c.Row > env.Rows-1 {
		c.Row = env.Rows - 1
	}
	if c.Col < 0 {
		c.Col = 0
	}
	if c.Col > env.Cols-1 {
		c.Col = env.Cols - 1
	}
	return c
}
