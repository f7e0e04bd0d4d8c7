package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/halvorsen-oss/mongobroker/internal/cli/prompt"
	"github.com/halvorsen-oss/mongobroker/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a configuration file",
	Long: `Walk through the settings a new mongobrokerd deployment needs and write
them to a configuration file.

Existing values are offered as defaults when the target file already
exists, so init doubles as a guided reconfiguration.

Examples:
  # Create the default config interactively
  mongobrokerd config init

  # Write to a specific path
  mongobrokerd config init --config /etc/mongobroker/config.yaml`,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()
	if existing, err := config.Load(configPath); err == nil {
		cfg = existing
	}

	if _, err := os.Stat(configPath); err == nil {
		overwrite, err := prompt.ConfirmDanger(fmt.Sprintf("%s already exists", configPath), "overwrite")
		if err != nil {
			return abortOrErr(err)
		}
		if !overwrite {
			fmt.Println("Aborted, existing configuration left untouched")
			return nil
		}
	}

	uri, err := prompt.Input("Mongo URI", cfg.Mongo.URI)
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Mongo.URI = uri

	withAuth, err := prompt.Confirm("Add a username/password to the URI", false)
	if err != nil {
		return abortOrErr(err)
	}
	if withAuth {
		user, err := prompt.InputRequired("Mongo username")
		if err != nil {
			return abortOrErr(err)
		}
		pass, err := prompt.Password("Mongo password")
		if err != nil {
			return abortOrErr(err)
		}
		cfg.Mongo.URI, err = withUserInfo(cfg.Mongo.URI, user, pass)
		if err != nil {
			return err
		}
	}

	listen, err := prompt.Input("Session listener address", cfg.Server.Listen)
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Server.Listen = listen

	maxConns, err := prompt.InputInt("Max pooled sessions", cfg.Mongo.MaxConnections)
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Mongo.MaxConnections = maxConns

	metricsPort, err := prompt.InputPort("Metrics/health port", cfg.Metrics.Port)
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Metrics.Port = metricsPort

	level, err := prompt.SelectString("Log level", []string{"DEBUG", "INFO", "WARN", "ERROR"})
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Logging.Level = level

	format, err := prompt.SelectString("Log format", []string{"text", "json"})
	if err != nil {
		return abortOrErr(err)
	}
	cfg.Logging.Format = format

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("Wrote configuration to %s\n", configPath)
	return nil
}

func withUserInfo(rawURI, user, pass string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid Mongo URI: %w", err)
	}
	u.User = url.UserPassword(user, pass)
	return u.String(), nil
}

func abortOrErr(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("Aborted")
		return nil
	}
	return err
}
