// coopgrid trains cooperating tabular Q-learning agents in a shared grid
// world where triggers let one agent open walls, grant bonuses, or end the
// episode for everyone.
//
// Usage:
//
//	coopgrid train -f world.yaml [--serve :8080]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "coopgrid",
	Short: "Cooperative multi-agent tabular Q-learning in a grid world",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
