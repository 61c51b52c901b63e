// Package cli implements the agentfeed command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "agentfeed",
	Short: "Follow the live execution stream of an agent job",
	Long: `Agentfeed is a client for the agent-actions event feed. It connects to
a backend job's push stream, reconstructs the ordered action log and
task progress from the raw frames, and keeps following across network
interruptions.`,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("agentfeed version {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
