package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisindex/internal/config"
	"github.com/jcdickinson/ferrisindex/internal/daemon"
	"github.com/jcdickinson/ferrisindex/internal/mcp"
	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

var (
	debug       bool
	local       bool
	indexFlags  []string
	shardsFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "ferrisindex",
	Short: "Rustdoc search index query MCP server",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "run daemon in-process (visible log output)")
	rootCmd.PersistentFlags().BoolVar(&local, "local", false, "answer from an in-process index without a daemon")
	rootCmd.PersistentFlags().StringSliceVar(&indexFlags, "index", nil, "search index file or URL to load first (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&shardsFlags, "shards", nil, "implementor shard file or directory to load first (repeatable)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(clearCacheCmd)
}

// connectBackend returns the backend commands talk to: an in-process
// service with --local, otherwise the daemon. Sources named by --index and
// --shards are loaded before returning.
func connectBackend(ctx context.Context) (daemon.Backend, error) {
	if local {
		return localBackend(ctx)
	}

	client, err := connectDaemon()
	if err != nil {
		return nil, err
	}
	if len(indexFlags) > 0 {
		resp, err := client.LoadIndex(ctx, rpc.LoadIndexRequest{Sources: indexFlags}, nil)
		if err != nil {
			return nil, fmt.Errorf("loading indexes: %w", err)
		}
		printLoadErrors(resp)
	}
	if len(shardsFlags) > 0 {
		resp, err := client.SubmitShard(ctx, rpc.SubmitShardRequest{Sources: shardsFlags})
		if err != nil {
			return nil, fmt.Errorf("loading shards: %w", err)
		}
		printLoadErrors(resp)
	}
	return client, nil
}

// localBackend loads the configured sources plus the flag sources into a
// fresh in-process service.
func localBackend(ctx context.Context) (daemon.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Sources.Indexes = append(cfg.Sources.Indexes, indexFlags...)
	cfg.Sources.Shards = append(cfg.Sources.Shards, shardsFlags...)
	cfg.Sources.Watch = false

	svc, err := daemon.NewService(cfg, nil)
	if err != nil {
		return nil, err
	}
	svc.Bootstrap(ctx)
	return svc, nil
}

func printLoadErrors(resp *rpc.LoadResponse) {
	for _, e := range resp.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", e)
	}
}

// connectDaemon returns a daemon client. In debug mode, starts the daemon
// in-process so all log output is visible in the terminal.
func connectDaemon() (*daemon.Client, error) {
	socketPath := config.SocketPath()

	if !debug {
		return daemon.ConnectOrSpawn(socketPath)
	}

	// In debug mode: stop any existing daemon, then start in-process
	client := daemon.NewClient(socketPath)
	if client.IsAvailable() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client.Shutdown(shutdownCtx)
		cancel()
		time.Sleep(200 * time.Millisecond)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	srv, err := daemon.NewServer(cfg, socketPath)
	if err != nil {
		return nil, fmt.Errorf("creating daemon: %w", err)
	}
	go func() {
		if err := srv.Start(context.Background()); err != nil {
			log.Printf("in-process daemon error: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		if client.IsAvailable() {
			return client, nil
		}
	}

	return nil, fmt.Errorf("in-process daemon did not start within 5 seconds")
}

func runServe(cmd *cobra.Command, args []string) {
	backend, err := connectBackend(context.Background())
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	server := mcp.NewServer(backend)

	errCh := make(chan error)
	go func() { errCh <- server.Run() }()

	if err := waitForSignal(errCh); err != nil {
		log.Fatalf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func waitForSignal(errCh chan error) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Printf("received signal: %s", sig)
		return nil
	case err := <-errCh:
		return err
	}
}
