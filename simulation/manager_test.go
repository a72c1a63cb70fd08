package simulation

import (
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"coopgrid/grid_world"
	"coopgrid/reinforcement"
)

func newTestAgent(id string, start grid_world.Cell, goal *grid_world.Cell, goalReward float64) *Agent {
	return &Agent{
		ID:         id,
		Start:      start,
		Goal:       goal,
		GoalReward: goalReward,
		Learner: reinforcement.NewLearner(
			reinforcement.Hyperparams{Alpha: 0.5, Gamma: 0.9, Warmup: 1},
			rand.New(rand.NewSource(1))),
	}
}

func TestEnvManagerWalls(t *testing.T) {
	Convey("Given a world with a wall and an open-wall trigger", t, func() {
		wall := grid_world.Cell{Row: 5, Col: 5}
		world := &World{
			Rows:        8,
			Cols:        8,
			StepPenalty: -1,
			StaticWalls: map[grid_world.Cell]bool{wall: true},
			Agents:      []*Agent{newTestAgent("A", grid_world.Cell{Row: 0, Col: 0}, nil, 0)},
			Triggers: []Trigger{
				{Who: "A", At: grid_world.Cell{Row: 2, Col: 2}, Effects: []Effect{OpenWall{Cell: wall}}},
			},
			StepCap: 10,
		}
		m := NewEnvManager(world, nil)
		m.Reset()

		Convey("The trigger fires exactly when the named agent is at the cell", func() {
			bonus := m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 2, Col: 1}})
			So(len(m.OpenedWalls()), ShouldEqual, 0)
			So(bonus["A"], ShouldEqual, 0)

			m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 2, Col: 2}})
			So(m.OpenedWalls(), ShouldResemble, []grid_world.Cell{wall})
		})

		Convey("An opened wall leaves the effective wall set until reset", func() {
			pos := map[string]grid_world.Cell{"A": {Row: 5, Col: 4}}
			joint := map[string]grid_world.Direction{"A": grid_world.Right}

			// Blocked while the wall stands.
			next, _ := m.ExecuteActions(joint, pos)
			So(next["A"], ShouldResemble, pos["A"])

			m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 2, Col: 2}})

			// Open on subsequent ticks.
			next, _ = m.ExecuteActions(joint, pos)
			So(next["A"], ShouldResemble, wall)

			// Reset restores the wall for the next episode.
			m.Reset()
			next, _ = m.ExecuteActions(joint, pos)
			So(next["A"], ShouldResemble, pos["A"])
		})

		Convey("Opening an already-open wall is a no-op", func() {
			m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 2, Col: 2}})
			m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 2, Col: 2}})
			So(len(m.OpenedWalls()), ShouldEqual, 1)
		})

		Convey("Triggers are persistent: they refire every matching step", func() {
			world.Triggers = append(world.Triggers, Trigger{
				Who: "A", At: grid_world.Cell{Row: 2, Col: 2}, Effects: []Effect{Reward{Delta: 3}},
			})
			m := NewEnvManager(world, nil)
			m.Reset()

			at := map[string]grid_world.Cell{"A": {Row: 2, Col: 2}}
			So(m.ProcessTriggers(at)["A"], ShouldEqual, 3)
			So(m.ProcessTriggers(at)["A"], ShouldEqual, 3)
		})
	})
}

func TestEnvManagerStepping(t *testing.T) {
	Convey("Given two agents stepping jointly", t, func() {
		goal := grid_world.Cell{Row: 0, Col: 2}
		world := &World{
			Rows:        3,
			Cols:        3,
			StepPenalty: -1,
			StaticWalls: map[grid_world.Cell]bool{},
			Agents: []*Agent{
				newTestAgent("A", grid_world.Cell{Row: 0, Col: 0}, &goal, 100),
				newTestAgent("B", grid_world.Cell{Row: 2, Col: 2}, nil, 0),
			},
			StepCap: 10,
		}
		m := NewEnvManager(world, nil)
		m.Reset()

		Convey("Each agent sees its own goal and reward", func() {
			next, rewards := m.ExecuteActions(
				map[string]grid_world.Direction{"A": grid_world.Right, "B": grid_world.Up},
				map[string]grid_world.Cell{"A": {Row: 0, Col: 1}, "B": {Row: 2, Col: 2}})

			So(next["A"], ShouldResemble, goal)
			So(rewards["A"], ShouldEqual, 100)
			So(next["B"], ShouldResemble, grid_world.Cell{Row: 1, Col: 2})
			So(rewards["B"], ShouldEqual, -1)

			Convey("And the own-goal arrival marks the episode done", func() {
				So(m.Done(), ShouldBeTrue)
			})
		})

		Convey("A non-goal joint step leaves the episode running", func() {
			_, _ = m.ExecuteActions(
				map[string]grid_world.Direction{"A": grid_world.Down, "B": grid_world.Stay},
				map[string]grid_world.Cell{"A": {Row: 0, Col: 0}, "B": {Row: 2, Col: 2}})
			So(m.Done(), ShouldBeFalse)
		})
	})
}

func TestTriggerEffects(t *testing.T) {
	Convey("Trigger effects apply in list order", t, func() {
		wall := grid_world.Cell{Row: 1, Col: 1}
		world := &World{
			Rows:        3,
			Cols:        3,
			StepPenalty: -1,
			StaticWalls: map[grid_world.Cell]bool{wall: true},
			Agents:      []*Agent{newTestAgent("A", grid_world.Cell{Row: 0, Col: 0}, nil, 0)},
			Triggers: []Trigger{
				{
					Who: "A",
					At:  grid_world.Cell{Row: 0, Col: 1},
					Effects: []Effect{
						OpenWall{Cell: wall},
						Reward{Delta: 10},
						Reward{Delta: 2.5},
						EndEpisode{},
					},
				},
			},
			StepCap: 10,
		}
		m := NewEnvManager(world, nil)
		m.Reset()

		bonus := m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 0, Col: 1}})

		Convey("Rewards accumulate for the owning agent", func() {
			So(bonus["A"], ShouldEqual, 12.5)
		})
		Convey("The wall is opened", func() {
			So(m.OpenedWalls(), ShouldResemble, []grid_world.Cell{wall})
		})
		Convey("EndEpisode sets the done flag", func() {
			So(m.Done(), ShouldBeTrue)
		})
	})

	Convey("A trigger naming an unknown agent is a no-op", t, func() {
		world := &World{
			Rows:        3,
			Cols:        3,
			StepPenalty: -1,
			StaticWalls: map[grid_world.Cell]bool{},
			Agents:      []*Agent{newTestAgent("A", grid_world.Cell{Row: 0, Col: 0}, nil, 0)},
			Triggers: []Trigger{
				{Who: "ghost", At: grid_world.Cell{Row: 0, Col: 0}, Effects: []Effect{EndEpisode{}}},
			},
			StepCap: 10,
		}
		m := NewEnvManager(world, nil)
		m.Reset()

		bonus := m.ProcessTriggers(map[string]grid_world.Cell{"A": {Row: 0, Col: 0}})
		So(len(bonus), ShouldEqual, 0)
		So(m.Done(), ShouldBeFalse)
	})
}
