package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/relic/internal/config"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "relic",
	Short:   "Relic is an artifact repository service",
	Long: `Relic stores versioned artifacts and their blobs behind a single
HTTP API: typed attributes, optimistic-concurrency updates, JSON Patch
editing, and a lifecycle/visibility state machine per artifact.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("relic version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime))
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(schemaCmd)
}
