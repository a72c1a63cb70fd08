package simulation

import (
	"fmt"

	"coopgrid/grid_world"
)

// Trigger is a declarative conditional rule: when the named agent's new
// position is exactly At, apply Effects in list order. Triggers are
// persistent: the full list is re-evaluated after every joint step for the
// whole episode. OpenWall is idempotent so re-firing it is harmless;
// configurations that want one-shot bonuses pair Reward with EndEpisode.
type Trigger struct {
	Who     string
	At      grid_world.Cell
	Effects []Effect
}

func (t Trigger) String() string {
	return fmt.Sprintf("trigger{who: %s, at: %s}", t.Who, t.At)
}

// Effect is a world or episode mutation applied when its trigger fires.
// The variants are OpenWall, Reward, and EndEpisode; the set is sealed to
// this package via the unexported apply method.
type Effect interface {
	apply(m *EnvManager, who string, bonus map[string]float64)
}

// OpenWall removes the cell from the effective wall set for the remainder
// of the episode. Opening an already-open cell is a no-op; the static wall
// set is never touched.
type OpenWall struct {
	Cell grid_world.Cell
}

func (e OpenWall) apply(m *EnvManager, _ string, _ map[string]float64) {
	m.opened[e.Cell] = true
}

// Reward accumulates Delta into the firing step's bonus reward for the
// trigger's owning agent.
type Reward struct {
	Delta float64
}

func (e Reward) apply(_ *EnvManager, who string, bonus map[string]float64) {
	bonus[who] += e.Delta
}

// EndEpisode marks the episode done. The episode stops after the current
// step's learning updates have been applied.
type EndEpisode struct{}

func (EndEpisode) apply(m *EnvManager, _ string, _ map[string]float64) {
	m.done = true
}
