package config

import (
	"fmt"

	"github.com/halvorsen-oss/mongobroker/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the mongobroker configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  mongobrokerd config validate

  # Validate specific config file
  mongobrokerd config validate --config /etc/mongobroker/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Session listener:  %s\n", cfg.Server.Listen)
	fmt.Printf("  Mongo URI:         %s\n", cfg.Mongo.URI)
	fmt.Printf("  Version history:   %s.%s\n", cfg.VersionHistory.Database, cfg.VersionHistory.Collection)
	fmt.Printf("  Metrics:           enabled=%v sink=%s port=%d\n", cfg.Metrics.Enabled, cfg.Metrics.Sink, cfg.Metrics.Port)
	fmt.Printf("  Log level:         %s\n", cfg.Logging.Level)

	return nil
}
