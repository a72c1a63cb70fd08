package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"coopgrid/config"
	"coopgrid/grid_world"
	"coopgrid/reinforcement"
	"coopgrid/server"
	"coopgrid/simulation"
)

var (
	trainWorldFile string
	trainServeAddr string
	trainEpisodes  int
	trainQuiet     bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the training loop for a world file",
	Long: `Loads a world definition, trains every agent for the configured
episode count, and prints each agent's greedy policy. With --serve, a live
grid view is published over websocket while training runs.`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVarP(&trainWorldFile, "file", "f", "world.yaml", "world definition file")
	trainCmd.Flags().StringVar(&trainServeAddr, "serve", "", "address for the live view, e.g. :8080 (off when empty)")
	trainCmd.Flags().IntVar(&trainEpisodes, "episodes", 0, "override the configured episode count")
	trainCmd.Flags().BoolVar(&trainQuiet, "quiet", false, "suppress progress logging")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if trainQuiet {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	spec, err := config.Load(trainWorldFile)
	if err != nil {
		return err
	}
	if trainEpisodes > 0 {
		spec.Episodes = trainEpisodes
	}

	world, err := spec.Build(logger)
	if err != nil {
		return err
	}

	var observer simulation.Observer
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if trainServeAddr != "" {
		srv := server.NewServer(
			trainServeAddr,
			world,
			spec.ShowAfter,
			time.Duration(spec.StepDelayMs)*time.Millisecond,
			logger)
		observer = srv
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Warn("live view server stopped", "err", err)
			}
		}()
	}

	trainer := simulation.NewTrainer(world, observer, logger)
	start := time.Now()
	results := trainer.Train()
	logger.Info("training complete",
		"episodes", len(results),
		"elapsed", time.Since(start).Round(time.Millisecond))

	printSummary(world, results)
	return nil
}

func printSummary(world *simulation.World, results []simulation.EpisodeResult) {
	succeeded := 0
	for _, r := range results {
		if r.Done {
			succeeded++
		}
	}
	fmt.Printf("episodes: %d  completed: %d  step-capped: %d\n",
		len(results), succeeded, len(results)-succeeded)
	if last := len(results) - 1; last >= 0 {
		fmt.Printf("final episode: steps=%d reward=%.1f\n",
			results[last].Steps, results[last].Total())
	}

	isWall := func(c grid_world.Cell) bool { return world.StaticWalls[c] }
	for _, ag := range world.Agents {
		fmt.Printf("\nagent %s greedy policy:\n", ag.ID)
		reinforcement.FprintPolicy(os.Stdout, ag.Learner, world.Rows, world.Cols, isWall)
	}
}
