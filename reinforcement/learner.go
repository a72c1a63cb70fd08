package reinforcement

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"coopgrid/grid_world"
)

// Hyperparams are the learning constants fixed for a learner's lifetime.
// Range validation is the configuration front-end's concern, not ours.
type Hyperparams struct {
	// Alpha is the learning rate, Gamma the discount factor.
	Alpha float64
	Gamma float64
	// Epsilon0 is the exploration rate during warm-up; after Warmup
	// episodes it decays linearly toward EpsilonMin over another Warmup
	// episodes, then floors there.
	Epsilon0   float64
	EpsilonMin float64
	Warmup     int
	// Optimistic is the default read for unvisited (state, action) pairs.
	Optimistic float64
}

type stateAction struct {
	cell grid_world.Cell
	dir  grid_world.Direction
}

// Learner is a per-agent tabular Q-learner: a value table plus an
// epsilon-greedy policy over it. It is exclusively owned by its agent;
// nothing else reads or writes the table except through Choose, Update,
// LoadInitialValues and the snapshot accessors.
type Learner struct {
	hp      Hyperparams
	rng     *rand.Rand
	episode int
	values  map[stateAction]float64
}

// NewLearner builds a learner with an empty (all-optimistic) table. The
// rand source is injected so runs are reproducible under a fixed seed.
func NewLearner(hp Hyperparams, rng *rand.Rand) *Learner {
	return &Learner{
		hp:     hp,
		rng:    rng,
		values: map[stateAction]float64{},
	}
}

// Episode returns the number of completed episodes.
func (l *Learner) Episode() int { return l.episode }

// FinishEpisode advances the episode counter, which drives epsilon decay.
// Called exactly once per completed episode by the training loop.
func (l *Learner) FinishEpisode() { l.episode++ }

// Epsilon is the current exploration rate: flat at Epsilon0 for the first
// Warmup episodes, then linearly decaying to EpsilonMin over the next
// Warmup episodes. Non-increasing in the episode counter.
func (l *Learner) Epsilon() float64 {
	hp := l.hp
	if l.episode < hp.Warmup {
		return hp.Epsilon0
	}
	if hp.Warmup < 1 {
		return hp.EpsilonMin
	}
	eps := hp.Epsilon0 - (hp.Epsilon0-hp.EpsilonMin)*float64(l.episode-hp.Warmup)/float64(hp.Warmup)
	if eps < hp.EpsilonMin {
		return hp.EpsilonMin
	}
	return eps
}

// Value reads Q(cell, dir), defaulting to the optimistic constant for
// pairs never updated.
func (l *Learner) Value(c grid_world.Cell, d grid_world.Direction) float64 {
	if v, ok := l.values[stateAction{c, d}]; ok {
		return v
	}
	return l.hp.Optimistic
}

// MaxValue is max over all directions of Q(cell, .).
func (l *Learner) MaxValue(c grid_world.Cell) float64 {
	best := l.Value(c, grid_world.Directions[0])
	for _, d := range grid_world.Directions[1:] {
		if v := l.Value(c, d); v > best {
			best = v
		}
	}
	return best
}

// Choose picks the next action for the given cell: with probability
// epsilon a uniformly random direction (exploring=true), otherwise the
// max-valued direction with ties broken uniformly among all maximizers.
func (l *Learner) Choose(c grid_world.Cell) (dir grid_world.Direction, exploring bool) {
	if l.rng.Float64() < l.Epsilon() {
		return grid_world.Directions[l.rng.Intn(len(grid_world.Directions))], true
	}
	return l.greedy(c), false
}

// greedy returns an argmax direction for the cell, tie-broken uniformly.
func (l *Learner) greedy(c grid_world.Cell) grid_world.Direction {
	best := l.Value(c, grid_world.Directions[0])
	maximizers := []grid_world.Direction{grid_world.Directions[0]}
	for _, d := range grid_world.Directions[1:] {
		v := l.Value(c, d)
		switch {
		case v > best:
			best = v
			maximizers = maximizers[:0]
			maximizers = append(maximizers, d)
		case v == best:
			maximizers = append(maximizers, d)
		}
	}
	return maximizers[l.rng.Intn(len(maximizers))]
}

// Update applies the Q-learning rule for one observed transition:
//
//	Q(s,a) <- (1-alpha)*Q(s,a) + alpha*(r + gamma*max_a' Q(s',a'))
func (l *Learner) Update(s grid_world.Cell, a grid_world.Direction, reward float64, next grid_world.Cell) {
	sa := stateAction{s, a}
	updated := (1-l.hp.Alpha)*l.Value(s, a) + l.hp.Alpha*(reward+l.hp.Gamma*l.MaxValue(next))
	l.values[sa] = updated
}

// Snapshot returns a copy of the value table keyed by cell, for observers
// and policy display. Mutating the copy does not affect the learner.
func (l *Learner) Snapshot() map[grid_world.Cell]map[grid_world.Direction]float64 {
	out := map[grid_world.Cell]map[grid_world.Direction]float64{}
	for sa, v := range l.values {
		row, ok := out[sa.cell]
		if !ok {
			row = map[grid_world.Direction]float64{}
			out[sa.cell] = row
		}
		row[sa.dir] = v
	}
	return out
}

// LoadInitialValues installs an externally generated value table. Outer
// keys are stringified coordinates, "(row, col)" or "row,col"; inner keys
// are action names (Up|Down|Left|Right|Stay). The load is all-or-nothing:
// any malformed key, unknown action name, or out-of-form coordinate
// rejects the whole table with an error and leaves the learner at its
// optimistic defaults. Callers treat the error as a per-agent fallback,
// never as fatal to a run.
func (l *Learner) LoadInitialValues(table map[string]map[string]float64) error {
	staged := make(map[stateAction]float64, len(table)*len(grid_world.Directions))
	for key, actions := range table {
		cell, err := parseCellKey(key)
		if err != nil {
			return fmt.Errorf("initial values: %w", err)
		}
		for name, val := range actions {
			dir, err := grid_world.ParseDirection(name)
			if err != nil {
				return fmt.Errorf("initial values at %s: %w", key, err)
			}
			staged[stateAction{cell, dir}] = val
		}
	}
	for sa, v := range staged {
		l.values[sa] = v
	}
	return nil
}

// parseCellKey accepts "(row, col)" and the tolerant "row,col" form.
func parseCellKey(key string) (grid_world.Cell, error) {
	s := strings.TrimSpace(key)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return grid_world.Cell{}, fmt.Errorf("malformed cell key %q", key)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return grid_world.Cell{}, fmt.Errorf("malformed cell key %q: %w", key, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return grid_world.Cell{}, fmt.Errorf("malformed cell key %q: %w", key, err)
	}
	if row < 0 || col < 0 {
		return grid_world.Cell{}, fmt.Errorf("negative coordinate in cell key %q", key)
	}
	return grid_world.Cell{Row: row, Col: col}, nil
}
