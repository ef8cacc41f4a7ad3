package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerly/dispatch/internal/core/config"
	"github.com/ledgerly/dispatch/internal/core/domain"
	"github.com/ledgerly/dispatch/internal/retry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and circuit breaker state of a running dispatcher",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	var stats domain.QueueStats
	if err := fetchJSON(client, base+"/admin/queue/stats", &stats); err != nil {
		slog.Error("Failed to fetch queue stats", "error", err)
		os.Exit(1)
	}

	var circuits []retry.BreakerStatus
	if err := fetchJSON(client, base+"/admin/circuits", &circuits); err != nil {
		slog.Error("Failed to fetch circuit status", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PENDING\tPROCESSING\tCOMPLETED\tFAILED\tRATE/MIN\tEST WAIT")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.1f\t%s\n",
		stats.PendingJobs, stats.ProcessingJobs, stats.CompletedJobs, stats.FailedJobs,
		stats.ProcessingRate, stats.EstimatedWaitTime)
	_ = w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CIRCUIT\tSTATE\tFAILURES\tNEXT ATTEMPT")
	for _, c := range circuits {
		next := "-"
		if !c.NextAttemptTime.IsZero() {
			next = c.NextAttemptTime.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.Key, c.State, c.FailureCount, next)
	}
	_ = w.Flush()
}

func fetchJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
