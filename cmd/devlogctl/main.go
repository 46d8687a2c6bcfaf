package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devloghq/devlog/internal/config"
	"github.com/devloghq/devlog/internal/devlog"
	"github.com/devloghq/devlog/internal/platform/logger"
)

var (
	projectFlag string
	verboseFlag bool
	rootCmd     = &cobra.Command{
		Use:   "devlogctl",
		Short: "CLI for the devlog work-log store",
		Long:  "devlogctl manages work-log entries across the configured storage backend (sqlite, postgres, or github).",
	}
)

// registry is built once per invocation, after flags are parsed.
func newRegistry() (*devlog.Registry, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	log := logger.NewConsole("devlogctl", verboseFlag)
	return devlog.NewRegistry(cfg, log), nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "default", "project name")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newShowCmd(),
		newNoteCmd(),
		newStatusCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newProjectsCmd(),
		newWatchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
