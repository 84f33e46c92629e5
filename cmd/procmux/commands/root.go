// Package commands implements the procmux CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "procmux",
	Short: "Backend process lifecycle manager",
	Long: `procmux multiplexes client sessions onto pooled backend server
processes. Shared sessions of one context collapse onto a single backend;
isolated sessions get their own. Backends are reference-counted through
persisted records and terminated when their last reference disappears.

Use "procmux [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("procmux", Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
