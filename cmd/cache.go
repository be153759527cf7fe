package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisindex/internal/cache"
	"github.com/jcdickinson/ferrisindex/internal/config"
	"github.com/jcdickinson/ferrisindex/internal/daemon"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clear fetched index files and cached search results",
	Run:   runClearCache,
}

func runClearCache(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		// Without a daemon only the on-disk cache exists.
		removed, err := cache.Clear()
		if err != nil {
			slog.Error("failed to clear cache", "error", err)
			os.Exit(1)
		}
		fmt.Printf("fetch cache cleared (%d files)\n", removed)
		return
	}

	resp, err := client.ClearCache(context.Background())
	if err != nil {
		slog.Error("failed to clear cache", "error", err)
		os.Exit(1)
	}
	fmt.Printf("fetch cache cleared (%d files), search cache purged\n", resp.Removed)
}
