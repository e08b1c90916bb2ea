package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - a minimal cluster control plane",
	Long: `Burrow tracks nodes that offer CPU cores and pods that request them.
Pods are placed first-fit, nodes that stop sending heartbeats are failed,
and the pods they hosted are rescheduled onto the remaining capacity.

Run 'burrow server' to start the control plane; the other commands talk to
a running server over its HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Burrow version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("api", "localhost:3001", "Address of the burrow HTTP API")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(podCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(applyCmd)
}
