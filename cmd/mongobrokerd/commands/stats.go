package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/halvorsen-oss/mongobroker/internal/cli/output"
)

var (
	statsMetricsPort int
	statsOutput      string
	statsWatch       bool
	statsInterval    time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live pool and telemetry-queue counters",
	Long: `Poll the running mongobrokerd daemon's /stats endpoint and print its
storage session pool and telemetry queue counters.

Examples:
  # Print counters once
  mongobrokerd stats

  # Refresh every two seconds until interrupted
  mongobrokerd stats --watch`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsMetricsPort, "metrics-port", 9090, "Metrics/health server port")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statsCmd.Flags().BoolVarP(&statsWatch, "watch", "w", false, "Keep polling until interrupted")
	statsCmd.Flags().DurationVar(&statsInterval, "interval", 2*time.Second, "Polling interval in --watch mode")
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/stats", statsMetricsPort)

	for {
		snapshot, err := fetchStats(client, url)
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		switch format {
		case output.FormatJSON:
			if err := output.PrintJSON(os.Stdout, snapshot); err != nil {
				return err
			}
		case output.FormatYAML:
			if err := output.PrintYAML(os.Stdout, snapshot); err != nil {
				return err
			}
		default:
			printStatsTable(snapshot)
		}

		if !statsWatch {
			return nil
		}
		time.Sleep(statsInterval)
	}
}

func fetchStats(client *http.Client, url string) (map[string]any, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return map[string]any{}, nil
	}

	var snapshot map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func printStatsTable(snapshot map[string]any) {
	table := output.NewTableData("Metric", "Value")

	pool, _ := snapshot["pool"].(map[string]any)
	for _, key := range []string{"active", "idle", "totalCreated", "maxPoolSize"} {
		if v, ok := pool[key]; ok {
			table.AddRow("pool."+key, fmt.Sprintf("%v", v))
		}
	}
	if depth, ok := snapshot["telemetryQueueDepth"]; ok {
		table.AddRow("telemetryQueueDepth", fmt.Sprintf("%v", depth))
	}

	_ = output.PrintTable(os.Stdout, table)
}
