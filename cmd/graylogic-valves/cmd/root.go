// Package cmd provides the CLI commands for Gray Logic Valves.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X github.com/nerrad567/gray-logic-valves/cmd/graylogic-valves/cmd.version=1.0.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "graylogic-valves",
	Short: "Gray Logic Valves - self-tuning radiator valve control",
	Long: `Gray Logic Valves drives motorized radiator valves toward each room's
target temperature. Every valve learns its own sweet spot and felt
temperature offset, and all position writes share one rate-limited
actuation queue.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Path to configuration file (default: $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
}

// getConfigPath returns the configuration file path.
// The --config flag wins, then GRAYLOGIC_CONFIG, then the default.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
