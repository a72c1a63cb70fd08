package simulation

import (
	"log/slog"
	"sort"

	"coopgrid/grid_world"
	"coopgrid/reinforcement"
)

// Agent is one learning participant: an id, a start cell, an optional
// goal, and the learner it exclusively owns.
type Agent struct {
	ID    string
	Start grid_world.Cell
	// Goal, when non-nil, is terminal for this agent and for the episode;
	// arriving there yields GoalReward instead of the step penalty.
	Goal       *grid_world.Cell
	GoalReward float64
	Learner    *reinforcement.Learner
}

// World is the full simulation configuration, built once by the
// configuration front-end and read-only to the core. The only evolving
// state layered on top of it is the per-episode opened-wall overlay owned
// by the EnvManager.
type World struct {
	Rows, Cols  int
	StepPenalty float64
	StaticWalls map[grid_world.Cell]bool
	Triggers    []Trigger
	Agents      []*Agent
	Episodes    int
	// StepCap bounds each episode; it is the only cancellation mechanism.
	StepCap int
}

// EnvManager owns the per-episode dynamic state: the opened-wall overlay
// and the episode-termination flag. Every agent steps against its own
// environment view (goal and goal reward differ per agent) but all views
// share one effective wall set.
type EnvManager struct {
	world  *World
	logger *slog.Logger
	envs   map[string]*grid_world.Environment
	opened map[grid_world.Cell]bool
	done   bool
}

func NewEnvManager(world *World, logger *slog.Logger) *EnvManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &EnvManager{
		world:  world,
		logger: logger,
		envs:   map[string]*grid_world.Environment{},
		opened: map[grid_world.Cell]bool{},
	}
	for _, ag := range world.Agents {
		m.envs[ag.ID] = &grid_world.Environment{
			Rows:        world.Rows,
			Cols:        world.Cols,
			StepPenalty: world.StepPenalty,
			Goal:        ag.Goal,
			GoalReward:  ag.GoalReward,
			IsWall:      m.isWall,
		}
	}
	m.warnUnknownTriggerAgents()
	return m
}

// isWall is the effective wall set: static walls minus walls opened this
// episode.
func (m *EnvManager) isWall(c grid_world.Cell) bool {
	return m.world.StaticWalls[c] && !m.opened[c]
}

// Reset clears the opened-wall overlay and the done flag, restoring every
// static wall. Called at the start of each episode.
func (m *EnvManager) Reset() {
	m.opened = map[grid_world.Cell]bool{}
	m.done = false
}

// Done reports whether the episode-termination flag is set.
func (m *EnvManager) Done() bool { return m.done }

// OpenedWalls returns the walls opened so far this episode, sorted for
// stable observer output.
func (m *EnvManager) OpenedWalls() []grid_world.Cell {
	cells := make([]grid_world.Cell, 0, len(m.opened))
	for c := range m.opened {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	return cells
}

// ExecuteActions applies one joint step. Every agent moves against the
// same wall snapshot: walls opened by triggers this tick affect only
// subsequent ticks, because trigger processing runs after this returns.
// An agent reaching its own goal sets the episode-termination flag.
func (m *EnvManager) ExecuteActions(
	joint map[string]grid_world.Direction,
	positions map[string]grid_world.Cell,
) (newPositions map[string]grid_world.Cell, stepRewards map[string]float64) {
	newPositions = make(map[string]grid_world.Cell, len(positions))
	stepRewards = make(map[string]float64, len(positions))
	for _, ag := range m.world.Agents {
		next, reward, terminal := m.envs[ag.ID].Step(positions[ag.ID], joint[ag.ID])
		newPositions[ag.ID] = next
		stepRewards[ag.ID] = reward
		if terminal {
			m.done = true
		}
	}
	return newPositions, stepRewards
}

// ProcessTriggers evaluates every trigger against the new joint positions
// and applies the effects of each match in list order. Returns the bonus
// reward accumulated per agent this step.
func (m *EnvManager) ProcessTriggers(positions map[string]grid_world.Cell) map[string]float64 {
	bonus := map[string]float64{}
	for _, t := range m.world.Triggers {
		pos, ok := positions[t.Who]
		if !ok || pos != t.At {
			continue
		}
		for _, effect := range t.Effects {
			effect.apply(m, t.Who, bonus)
		}
	}
	return bonus
}

// A trigger naming an agent that does not exist can never fire; it is a
// configuration mistake but not a fatal one. Warn once per run.
func (m *EnvManager) warnUnknownTriggerAgents() {
	for _, t := range m.world.Triggers {
		if _, ok := m.envs[t.Who]; !ok {
			m.logger.Warn("trigger references unknown agent, will never fire",
				"agent", t.Who, "at", t.At.String())
		}
	}
}
