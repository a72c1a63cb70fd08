// Package config is the declarative front-end that assembles a validated
// simulation.World from a YAML file. The core packages never read files or
// globals; everything they need arrives through the World value built here.
package config

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"coopgrid/grid_world"
	"coopgrid/reinforcement"
	"coopgrid/simulation"
)

// WorldKind is the expected outer envelope kind.
const WorldKind = "coopgrid/world"

// OuterConfig is the file envelope: a kind selector plus an untyped def
// that is re-marshalled into the typed spec. Keys are snake_case because
// viper lowercases keys on read.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// WorldSpec is the full run configuration as written in the file.
type WorldSpec struct {
	Rows        int     `yaml:"rows"`
	Cols        int     `yaml:"cols"`
	StepPenalty float64 `yaml:"step_penalty"`
	Seed        int64   `yaml:"seed"`
	Episodes    int     `yaml:"episodes"`
	StepCap     int     `yaml:"step_cap"`

	// Observer pacing: episodes before the live view engages, and the
	// per-step delay once it does. Display-only knobs.
	ShowAfter   int `yaml:"show_after"`
	StepDelayMs int `yaml:"step_delay_ms"`

	// WallMap is an ASCII map ('#' wall, '.'/' ' open), zero-based from
	// the top-left. Walls lists additional explicit wall cells.
	WallMap []string  `yaml:"wall_map"`
	Walls   []CellDef `yaml:"walls"`

	Learner  LearnerSpec  `yaml:"learner"`
	Agents   []AgentSpec  `yaml:"agents"`
	Triggers []TriggerDef `yaml:"triggers"`
}

type LearnerSpec struct {
	Alpha      float64 `yaml:"alpha"`
	Gamma      float64 `yaml:"gamma"`
	Epsilon    float64 `yaml:"epsilon"`
	EpsilonMin float64 `yaml:"epsilon_min"`
	Warmup     int     `yaml:"warmup"`
	Optimistic float64 `yaml:"optimistic"`
}

type CellDef struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

func (c CellDef) cell() grid_world.Cell {
	return grid_world.Cell{Row: c.Row, Col: c.Col}
}

type AgentSpec struct {
	ID         string   `yaml:"id"`
	Start      CellDef  `yaml:"start"`
	Goal       *CellDef `yaml:"goal"`
	GoalReward float64  `yaml:"goal_reward"`

	// Optional externally generated value table, inline or in a separate
	// YAML file. Malformed tables fall back to optimistic defaults for
	// this agent only; the run proceeds regardless.
	InitialValues     map[string]map[string]float64 `yaml:"initial_values"`
	InitialValuesFile string                        `yaml:"initial_values_file"`
}

type TriggerDef struct {
	Who     string      `yaml:"who"`
	At      CellDef     `yaml:"at"`
	Effects []EffectDef `yaml:"effects"`
}

// EffectDef is a one-of: exactly one field may be set per list entry.
type EffectDef struct {
	OpenWall   *CellDef `yaml:"open_wall"`
	Reward     *float64 `yaml:"reward"`
	EndEpisode bool     `yaml:"end_episode"`
}

// Load reads and validates a world file.
func Load(path string) (*WorldSpec, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read world config: %w", err)
	}

	outer := &OuterConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, fmt.Errorf("unmarshal world config: %w", err)
	}
	if outer.Kind != WorldKind {
		return nil, fmt.Errorf("unexpected config kind %q, want %q", outer.Kind, WorldKind)
	}

	raw, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, fmt.Errorf("re-marshal world def: %w", err)
	}
	spec := &WorldSpec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("unmarshal world def: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate enforces the configuration-time invariants the core assumes:
// sane dimensions and hyperparameter ranges, unique agent ids, in-range
// cells, and well-formed trigger effects.
func (spec *WorldSpec) Validate() error {
	if spec.Rows < 1 || spec.Cols < 1 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", spec.Rows, spec.Cols)
	}
	if spec.Episodes < 1 {
		return fmt.Errorf("episodes must be positive, got %d", spec.Episodes)
	}
	if spec.StepCap < 1 {
		return fmt.Errorf("step_cap must be positive, got %d", spec.StepCap)
	}
	if spec.StepPenalty >= 0 {
		return fmt.Errorf("step_penalty must be strictly negative, got %v", spec.StepPenalty)
	}
	if len(spec.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}

	lr := spec.Learner
	if lr.Alpha <= 0 || lr.Alpha > 1 {
		return fmt.Errorf("learner alpha must be in (0,1], got %v", lr.Alpha)
	}
	if lr.Gamma < 0 || lr.Gamma > 1 {
		return fmt.Errorf("learner gamma must be in [0,1], got %v", lr.Gamma)
	}
	if lr.Epsilon < 0 || lr.Epsilon > 1 || lr.EpsilonMin < 0 || lr.EpsilonMin > lr.Epsilon {
		return fmt.Errorf("learner epsilon range invalid: epsilon=%v epsilon_min=%v", lr.Epsilon, lr.EpsilonMin)
	}
	if lr.Warmup < 1 {
		return fmt.Errorf("learner warmup must be positive, got %d", lr.Warmup)
	}

	seen := map[string]bool{}
	for _, ag := range spec.Agents {
		if ag.ID == "" {
			return fmt.Errorf("agent with empty id")
		}
		if seen[ag.ID] {
			return fmt.Errorf("duplicate agent id %q", ag.ID)
		}
		seen[ag.ID] = true
		if !spec.contains(ag.Start) {
			return fmt.Errorf("agent %q start %v out of range", ag.ID, ag.Start.cell())
		}
		if ag.Goal != nil && !spec.contains(*ag.Goal) {
			return fmt.Errorf("agent %q goal %v out of range", ag.ID, ag.Goal.cell())
		}
	}

	for i, t := range spec.Triggers {
		if !spec.contains(t.At) {
			return fmt.Errorf("trigger %d at %v out of range", i, t.At.cell())
		}
		for j, e := range t.Effects {
			if err := e.validate(); err != nil {
				return fmt.Errorf("trigger %d effect %d: %w", i, j, err)
			}
		}
	}
	return nil
}

func (spec *WorldSpec) contains(c CellDef) bool {
	return c.Row >= 0 && c.Row < spec.Rows && c.Col >= 0 && c.Col < spec.Cols
}

func (e EffectDef) validate() error {
	n := 0
	if e.OpenWall != nil {
		n++
	}
	if e.Reward != nil {
		n++
	}
	if e.EndEpisode {
		n++
	}
	if n != 1 {
		return fmt.Errorf("exactly one of open_wall, reward, end_episode must be set")
	}
	return nil
}

// Build assembles the runtime world: wall sets merged from map and list,
// one seeded rand source shared by all learners in agent order (the run
// is single-threaded, so sharing keeps it reproducible), and per-agent
// value-table injection with the documented all-or-nothing fallback.
func (spec *WorldSpec) Build(logger *slog.Logger) (*simulation.World, error) {
	if logger == nil {
		logger = slog.Default()
	}

	walls, mapRows, mapCols := grid_world.ParseWallMap(spec.WallMap)
	if mapRows > spec.Rows || mapCols > spec.Cols {
		return nil, fmt.Errorf("wall map %dx%d exceeds grid %dx%d", mapRows, mapCols, spec.Rows, spec.Cols)
	}
	for _, w := range spec.Walls {
		if !spec.contains(w) {
			return nil, fmt.Errorf("wall %v out of range", w.cell())
		}
		walls[w.cell()] = true
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	hp := reinforcement.Hyperparams{
		Alpha:      spec.Learner.Alpha,
		Gamma:      spec.Learner.Gamma,
		Epsilon0:   spec.Learner.Epsilon,
		EpsilonMin: spec.Learner.EpsilonMin,
		Warmup:     spec.Learner.Warmup,
		Optimistic: spec.Learner.Optimistic,
	}

	world := &simulation.World{
		Rows:        spec.Rows,
		Cols:        spec.Cols,
		StepPenalty: spec.StepPenalty,
		StaticWalls: walls,
		Episodes:    spec.Episodes,
		StepCap:     spec.StepCap,
	}

	for _, ag := range spec.Agents {
		learner := reinforcement.NewLearner(hp, rng)
		injectInitialValues(learner, ag, logger)

		agent := &simulation.Agent{
			ID:         ag.ID,
			Start:      ag.Start.cell(),
			GoalReward: ag.GoalReward,
			Learner:    learner,
		}
		if ag.Goal != nil {
			goal := ag.Goal.cell()
			agent.Goal = &goal
		}
		world.Agents = append(world.Agents, agent)
	}

	for _, t := range spec.Triggers {
		trigger := simulation.Trigger{Who: t.Who, At: t.At.cell()}
		for _, e := range t.Effects {
			trigger.Effects = append(trigger.Effects, e.effect())
		}
		world.Triggers = append(world.Triggers, trigger)
	}

	return world, nil
}

func (e EffectDef) effect() simulation.Effect {
	switch {
	case e.OpenWall != nil:
		return simulation.OpenWall{Cell: e.OpenWall.cell()}
	case e.Reward != nil:
		return simulation.Reward{Delta: *e.Reward}
	default:
		return simulation.EndEpisode{}
	}
}

// injectInitialValues applies an externally generated table to the agent's
// learner. Failure is per-agent and non-fatal: the agent keeps its
// optimistic defaults and the run proceeds.
func injectInitialValues(learner *reinforcement.Learner, ag AgentSpec, logger *slog.Logger) {
	table := ag.InitialValues
	if table == nil && ag.InitialValuesFile != "" {
		loaded, err := loadValueTable(ag.InitialValuesFile)
		if err != nil {
			logger.Warn("initial value table unreadable, keeping defaults",
				"agent", ag.ID, "file", ag.InitialValuesFile, "err", err)
			return
		}
		table = loaded
	}
	if table == nil {
		return
	}
	if err := learner.LoadInitialValues(table); err != nil {
		logger.Warn("initial value table malformed, keeping defaults",
			"agent", ag.ID, "err", err)
	}
}

// loadValueTable reads a standalone YAML value table: stringified cell
// keys mapping action names to values.
func loadValueTable(path string) (map[string]map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table := map[string]map[string]float64{}
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	return table, nil
}
