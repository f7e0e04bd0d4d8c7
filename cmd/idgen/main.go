// Command idgen prints a BSON ObjectId, optionally anchored at a specific
// point in time rather than the current instant. It is grounded on
// original_source/src/genoid/main.cpp, reworked from clara-based flag
// parsing and NanoLog onto this repo's cobra/slog conventions.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/halvorsen-oss/mongobroker/internal/logger"
)

var (
	at       string
	logLevel string
	logDir   string
)

var rootCmd = &cobra.Command{
	Use:   "idgen",
	Short: "Generate a BSON ObjectId",
	Long: `Generate a BSON ObjectId, printed to stdout.

With no flags, generates an id anchored at the current time. With --at,
generates an id anchored at the given ISO8601 timestamp instead — useful
for constructing range-query bounds against _id-based collections.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&at, "at", "a", "", "Generate the ObjectId at this ISO8601 timestamp, e.g. 2024-10-25T14:30:30.000Z")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "Log level [debug|info|warn|critical]")
	rootCmd.Flags().StringVarP(&logDir, "log-dir", "o", os.TempDir(), "Log directory")
}

func run(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{
		Level:  normalizeLevel(logLevel),
		Format: "text",
		Output: logDir,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if at == "" {
		fmt.Println(primitive.NewObjectID().Hex())
		return nil
	}

	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return fmt.Errorf("error parsing date-time value: must be ISO8601 (yyyy-MM-ddTHH:mm:ss.SSSZ): %w", err)
	}

	id := primitive.NewObjectIDFromTimestamp(ts)
	logger.Info("generated ObjectId", "at", at, "id", id.Hex())
	fmt.Println(id.Hex())
	return nil
}

// normalizeLevel maps genoid's "critical" level (carried over from the
// original CLI surface) onto this repo's ERROR level; the logger package
// does not define a distinct critical tier.
func normalizeLevel(level string) string {
	if level == "critical" {
		return "error"
	}
	return level
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
