// Package config implements mongobrokerd's configuration management
// subcommands.
package config

import "github.com/spf13/cobra"

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and edit the mongobroker configuration file.

Subcommands:
  init      Interactively create a configuration file
  edit      Open configuration in editor
  validate  Validate configuration file`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(editCmd)
	Cmd.AddCommand(validateCmd)
}
