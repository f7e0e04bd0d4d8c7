// Package commands implements the mongobrokerd CLI: start/stop/status the
// broker daemon and inspect/edit its configuration.
package commands

import (
	"os"

	"github.com/halvorsen-oss/mongobroker/cmd/mongobrokerd/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "mongobrokerd",
	Short: "mongobroker - a length-prefixed BSON request broker for MongoDB",
	Long: `mongobrokerd brokers length-prefixed BSON requests from one or more
clients onto a backing MongoDB deployment, auditing every mutation to a
version-history collection and recording per-request metrics to a
telemetry sink.

Use "mongobrokerd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/mongobroker/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
