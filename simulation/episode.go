package simulation

import (
	"log/slog"

	"coopgrid/grid_world"
)

// Snapshot is the per-step view handed to observers. It is a copy:
// observers may hold it, drop it, or render it late without affecting
// training.
type Snapshot struct {
	Episode       int                        `json:"episode"`
	Step          int                        `json:"step"`
	Positions     map[string]grid_world.Cell `json:"positions"`
	OpenedWalls   []grid_world.Cell          `json:"openedWalls"`
	Exploring     bool                       `json:"exploring"`
	EpisodeReward float64                    `json:"episodeReward"`
	Epsilon       float64                    `json:"epsilon"`
}

// Observer receives one Snapshot per joint step, purely for display or
// logging. Pacing (sleeps, rate caps) belongs to implementations; the
// training loop never blocks on correctness grounds here, and removing
// the observer entirely must not change outcomes.
type Observer interface {
	ObserveStep(Snapshot)
}

// EpisodeResult is what one completed episode reports back.
type EpisodeResult struct {
	Steps int
	// Done is true when a terminal condition fired (own-goal arrival or
	// an EndEpisode effect), false when the step cap expired first.
	Done bool
	// Rewards is the per-agent total reward accumulated over the episode,
	// step penalties and trigger bonuses included.
	Rewards map[string]float64
}

// Total sums the per-agent rewards.
func (r EpisodeResult) Total() float64 {
	total := 0.0
	for _, v := range r.Rewards {
		total += v
	}
	return total
}

// Trainer drives episodes: joint action selection from a single position
// snapshot, simultaneous stepping, trigger processing, reward composition
// and learning updates, strictly single-threaded and synchronous.
type Trainer struct {
	world    *World
	manager  *EnvManager
	observer Observer
	logger   *slog.Logger
}

// NewTrainer wires a trainer. observer may be nil; logger defaults to
// slog.Default().
func NewTrainer(world *World, observer Observer, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		world:    world,
		manager:  NewEnvManager(world, logger),
		observer: observer,
		logger:   logger,
	}
}

// Manager exposes the environment manager, mainly for tests and views.
func (t *Trainer) Manager() *EnvManager { return t.manager }

// RunEpisode runs one episode to completion: until a terminal condition
// fires or the step cap is reached. An agent already standing on its goal
// at reset terminates the episode immediately with zero steps.
func (t *Trainer) RunEpisode(episode int) EpisodeResult {
	t.manager.Reset()

	positions := make(map[string]grid_world.Cell, len(t.world.Agents))
	rewards := make(map[string]float64, len(t.world.Agents))
	for _, ag := range t.world.Agents {
		positions[ag.ID] = ag.Start
		rewards[ag.ID] = 0
	}
	for _, ag := range t.world.Agents {
		if ag.Goal != nil && ag.Start == *ag.Goal {
			return EpisodeResult{Steps: 0, Done: true, Rewards: rewards}
		}
	}

	result := EpisodeResult{Rewards: rewards}
	episodeReward := 0.0
	for step := 0; step < t.world.StepCap; step++ {
		// Joint selection from one consistent snapshot of positions,
		// before any move is applied.
		joint := make(map[string]grid_world.Direction, len(t.world.Agents))
		exploring := false
		for _, ag := range t.world.Agents {
			dir, explored := ag.Learner.Choose(positions[ag.ID])
			joint[ag.ID] = dir
			exploring = exploring || explored
		}

		newPositions, stepRewards := t.manager.ExecuteActions(joint, positions)
		bonus := t.manager.ProcessTriggers(newPositions)

		for _, ag := range t.world.Agents {
			total := stepRewards[ag.ID] + bonus[ag.ID]
			ag.Learner.Update(positions[ag.ID], joint[ag.ID], total, newPositions[ag.ID])
			rewards[ag.ID] += total
			episodeReward += total
		}

		positions = newPositions
		result.Steps = step + 1

		if t.observer != nil {
			t.observer.ObserveStep(Snapshot{
				Episode:       episode,
				Step:          step,
				Positions:     copyPositions(positions),
				OpenedWalls:   t.manager.OpenedWalls(),
				Exploring:     exploring,
				EpisodeReward: episodeReward,
				Epsilon:       t.maxEpsilon(),
			})
		}

		if t.manager.Done() {
			result.Done = true
			break
		}
	}
	return result
}

// Train runs the configured episode count, advancing every learner's
// episode counter once per completed episode. The loop always completes
// the full count; nothing inside a step is allowed to abort the run.
func (t *Trainer) Train() []EpisodeResult {
	results := make([]EpisodeResult, 0, t.world.Episodes)
	for ep := 0; ep < t.world.Episodes; ep++ {
		result := t.RunEpisode(ep)
		for _, ag := range t.world.Agents {
			ag.Learner.FinishEpisode()
		}
		results = append(results, result)

		if (ep+1)%100 == 0 || ep == t.world.Episodes-1 {
			t.logger.Info("episode complete",
				"episode", ep,
				"steps", result.Steps,
				"done", result.Done,
				"reward", result.Total(),
				"epsilon", t.maxEpsilon())
		}
	}
	return results
}

// maxEpsilon is the largest current exploration rate across agents,
// reported to observers.
func (t *Trainer) maxEpsilon() float64 {
	eps := 0.0
	for _, ag := range t.world.Agents {
		if e := ag.Learner.Epsilon(); e > eps {
			eps = e
		}
	}
	return eps
}

func copyPositions(positions map[string]grid_world.Cell) map[string]grid_world.Cell {
	out := make(map[string]grid_world.Cell, len(positions))
	for id, c := range positions {
		out[id] = c
	}
	return out
}
