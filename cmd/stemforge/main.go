// Package main provides the entry point for the stemforge CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stemforge/stemforge/cmd/stemforge/commands"
	"github.com/stemforge/stemforge/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stemforge",
		Short: "Stemforge - batch stem mixing and mastering pipeline",
		Long: `Stemforge runs a staged analyse/process/mixdown pipeline over
multitrack stems and produces a mastered mixdown plus analysis artifacts.

Commands:
  worker    Consume jobs from the configured queue
  run       Run one job locally from a directory of stems
  stages    List the declared stage contracts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStagesCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "stemforge %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
