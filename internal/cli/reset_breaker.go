package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerly/dispatch/internal/core/config"
)

var resetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker [key]",
	Short: "Force a circuit breaker back to CLOSED on a running dispatcher",
	Args:  cobra.ExactArgs(1),
	Run:   runResetBreaker,
}

func init() {
	rootCmd.AddCommand(resetBreakerCmd)
}

func runResetBreaker(cmd *cobra.Command, args []string) {
	key := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	url := fmt.Sprintf("http://localhost:%d/admin/circuits/reset?key=%s", cfg.Server.Port, key)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		slog.Error("Failed to reach dispatcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result struct {
		Key   string `json:"key"`
		Reset bool   `json:"reset"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Error("Failed to decode response", "error", err)
		os.Exit(1)
	}

	if !result.Reset {
		fmt.Printf("No breaker found for key %q\n", key)
		os.Exit(1)
	}
	fmt.Printf("Successfully reset breaker for %s\n", key)
}
