package config

import (
	"fmt"
	"strings"
)

// Validate checks a fully-defaulted Config for internal consistency.
// It intentionally mirrors the `validate:"..."` struct tags documented on
// Config's fields rather than depending on a struct-tag validation library.
func Validate(cfg *Config) error {
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateMongo(&cfg.Mongo); err != nil {
		return err
	}
	if err := validateVersionHistory(&cfg.VersionHistory); err != nil {
		return err
	}
	if err := validateMetrics(&cfg.Metrics); err != nil {
		return err
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be greater than zero")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Format)
	}
	if cfg.Output == "" {
		return fmt.Errorf("logging.output must not be empty")
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", cfg.SampleRate)
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("server.workers must not be negative")
	}
	return nil
}

func validateMongo(cfg *MongoConfig) error {
	if cfg.URI == "" {
		return fmt.Errorf("mongo.uri must not be empty")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("mongo.max_connections must be greater than zero")
	}
	if cfg.InitialSize > cfg.MaxConnections {
		return fmt.Errorf("mongo.initial_size (%d) must not exceed mongo.max_connections (%d)", cfg.InitialSize, cfg.MaxConnections)
	}
	return nil
}

func validateVersionHistory(cfg *VersionHistoryConfig) error {
	if cfg.Database == "" || cfg.Collection == "" {
		return fmt.Errorf("version_history.database and version_history.collection must not be empty")
	}
	return nil
}

func validateMetrics(cfg *MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Port != 0 && (cfg.Port < 1 || cfg.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", cfg.Port)
	}
	switch cfg.Sink {
	case "", "mongo":
		if cfg.Sink == "mongo" && (cfg.Database == "" || cfg.Collection == "") {
			return fmt.Errorf("metrics.database and metrics.collection are required when metrics.sink is mongo")
		}
	case "lineprotocol":
		if cfg.LineProtocolAddr == "" {
			return fmt.Errorf("metrics.line_protocol_addr is required when metrics.sink is lineprotocol")
		}
	default:
		return fmt.Errorf("metrics.sink must be mongo or lineprotocol, got %q", cfg.Sink)
	}
	return nil
}
