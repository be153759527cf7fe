package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisindex/internal/config"
	"github.com/jcdickinson/ferrisindex/internal/daemon"
	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

var loadCmd = &cobra.Command{
	Use:   "load [index ...]",
	Short: "Load search indexes and implementor shards into the daemon",
	Long: `Load rustdoc search-index files (search-index.js or JSON, optionally
zstd-compressed) and implementor shards. URLs are fetched once and cached.`,
	Example: `  ferrisindex load target/doc/search-index.js
  ferrisindex load --shards target/doc/implementors --ready target/doc/search-index.js
  ferrisindex load --refresh https://docs.example.org/search-index.js`,
	Run: runLoad,
}

var (
	loadRefresh bool
	loadReady   bool
)

func init() {
	loadCmd.Flags().BoolVar(&loadRefresh, "refresh", false, "refetch URL sources instead of using the cache")
	loadCmd.Flags().BoolVar(&loadReady, "ready", false, "mark the implementor registry ready after loading")
}

func runLoad(cmd *cobra.Command, args []string) {
	if len(args) == 0 && len(shardsFlags) == 0 && !loadReady {
		log.Fatalf("nothing to load: pass index sources, --shards or --ready")
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}
	ctx := context.Background()

	sources := append(args, indexFlags...)
	if len(sources) > 0 {
		resp, err := client.LoadIndex(ctx, rpc.LoadIndexRequest{Sources: sources, Refresh: loadRefresh}, func(msg string) {
			fmt.Printf("  %s\n", msg)
		})
		if err != nil {
			log.Fatalf("failed to load indexes: %v", err)
		}
		fmt.Printf("  crates: %s\n", strings.Join(resp.Crates, ", "))
		for _, e := range resp.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}

	if len(shardsFlags) > 0 {
		resp, err := client.SubmitShard(ctx, rpc.SubmitShardRequest{Sources: shardsFlags})
		if err != nil {
			log.Fatalf("failed to load shards: %v", err)
		}
		fmt.Printf("  %d shards, %d implementors\n", resp.Shards, resp.Entries)
		for _, e := range resp.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}

	if loadReady {
		resp, err := client.MarkReady(ctx)
		if err != nil {
			log.Fatalf("failed to mark registry ready: %v", err)
		}
		fmt.Printf("  registry %s (%d buffered shards merged)\n", resp.State, resp.Flushed)
	}
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search loaded indexes by name or type signature",
	Example: `  ferrisindex search VarStore::get
  ferrisindex search "kind:fn scan"
  ferrisindex search "char -> WabbitType"
  ferrisindex search --local --index target/doc/search-index.js "&str -> Token"`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

var (
	searchCrates []string
	searchLimit  int
	searchJSON   bool
)

func init() {
	searchCmd.Flags().StringSliceVar(&searchCrates, "crate", nil, "filter to specific crates (repeatable)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "max results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	backend, err := connectBackend(ctx)
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := backend.Search(ctx, rpc.SearchRequest{
		Query:  args[0],
		Crates: searchCrates,
		Limit:  searchLimit,
	})
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	if searchJSON {
		out, _ := json.MarshalIndent(resp.Results, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(resp.Results) == 0 {
		fmt.Println("no results")
		return
	}

	for i, r := range resp.Results {
		fmt.Printf("%d. [%.0f %s] %s (%s)\n", i+1, r.Score, r.Match, r.Path, r.Kind)
		if r.Signature != "" {
			fmt.Printf("   %s\n", r.Signature)
		}
		if r.Summary != "" {
			fmt.Printf("   %s\n", r.Summary)
		}
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loaded crates and registry state",
	Run:   runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	backend, err := connectBackend(ctx)
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := backend.Status(ctx)
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("registry: %s, %d implementors, %d pending shards\n", resp.RegistryState, resp.Implementors, resp.PendingShards)
	if len(resp.Crates) == 0 {
		fmt.Println("no crates loaded")
		return
	}
	for _, c := range resp.Crates {
		fmt.Printf("  %s: %d items", c.Name, c.Items)
		if c.SignatureErrors > 0 {
			fmt.Printf(" (%d without signatures)", c.SignatureErrors)
		}
		fmt.Println()
	}
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Run:   runStop,
}

func runStop(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		fmt.Println("daemon is not running")
		return
	}

	// Connection reset is expected: the daemon exits after responding.
	client.Shutdown(context.Background())
	fmt.Println("daemon stopped")
}
