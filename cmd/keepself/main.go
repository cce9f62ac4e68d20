// Package main provides the keepself command, which supervises an arbitrary
// executable: it restarts the program when it exits and forwards termination
// signals to it.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	keepself "github.com/axondata/go-keepself"
)

// Version information set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// logger is shared by all subcommands and configured by the root flags.
var logger = keepself.NewConsoleLogger("keepself")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "keepself",
	Short:         "Keep a program running by restarting it when it exits",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetLevel(log.InfoLevel)
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logger.SetLevel(log.DebugLevel)
			logger.Debug("Debug logging enabled")
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := keepself.GetVersion()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "keepself %s (commit %s)\n", version, commit)
		fmt.Fprintf(out, "Library: %s\n", info.Version)
		fmt.Fprintf(out, "Identity record: %d bytes\n", info.IdentitySize)
		for _, name := range info.Features {
			fmt.Fprintf(out, "Feature: %s\n", name)
		}
	},
}
