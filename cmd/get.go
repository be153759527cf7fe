package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

var getCmd = &cobra.Command{
	Use:   "get [crate] <path>",
	Short: "Show the documentation page of an item",
	Example: `  ferrisindex get wabbit::types::WabbitType::from
  ferrisindex get wabbit wabbit::environment::VarStore
  ferrisindex get rustdoc://wabbit/wabbit::environment::VarStore`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runGet,
}

var implsCmd = &cobra.Command{
	Use:   "impls <path>",
	Short: "List trait implementations of a type, or implementors of a trait",
	Example: `  ferrisindex impls wabbit::operators::LoopControl
  ferrisindex impls --of core::clone::Clone
  ferrisindex impls --trait core::marker::Send wabbit::environment::VarStore
  ferrisindex impls --known wabbit::environment::Cell=false wabbit::environment::Environment`,
	Args: cobra.ExactArgs(1),
	Run:  runImpls,
}

var (
	implsTrait string
	implsKnown map[string]string
	implsJSON  bool
	implsOf    bool
)

func init() {
	implsCmd.Flags().StringVar(&implsTrait, "trait", "", "only impls of this trait path")
	implsCmd.Flags().BoolVar(&implsOf, "of", false, "treat the argument as a trait and list its implementors")
	implsCmd.Flags().StringToStringVar(&implsKnown, "known", nil, "type paths known to satisfy (true) or fail (false) the trait")
	implsCmd.Flags().BoolVar(&implsJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(implsCmd)
}

// getTarget accepts "path", "crate path" or "rustdoc://crate/path".
func getTarget(args []string) rpc.GetRequest {
	if len(args) == 2 {
		return rpc.GetRequest{Crate: args[0], Path: args[1]}
	}
	if rest, ok := strings.CutPrefix(args[0], "rustdoc://"); ok {
		if crate, path, ok := strings.Cut(rest, "/"); ok {
			return rpc.GetRequest{Crate: crate, Path: path}
		}
	}
	return rpc.GetRequest{Path: args[0]}
}

func parseKnown(raw map[string]string) (map[string]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(raw))
	for path, v := range raw {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s=%s: %w", path, v, err)
		}
		known[path] = ok
	}
	return known, nil
}

func runGet(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	backend, err := connectBackend(ctx)
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := backend.Get(ctx, getTarget(args))
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}

	fmt.Print(resp.Markdown)
}

func runImpls(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	backend, err := connectBackend(ctx)
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	known, err := parseKnown(implsKnown)
	if err != nil {
		log.Fatalf("invalid --known: %v", err)
	}
	req := rpc.ImplementorsRequest{Type: args[0], Trait: implsTrait, Known: known}
	if implsOf {
		req = rpc.ImplementorsRequest{Trait: args[0], Known: known}
	}
	resp, err := backend.Implementors(ctx, req)
	if err != nil {
		log.Fatalf("implementors failed: %v", err)
	}

	if implsJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	if resp.State != "ready" {
		fmt.Printf("registry is %s; shards are buffered until it is marked ready\n", resp.State)
	}
	if len(resp.Implementors) == 0 {
		fmt.Println("no implementations")
		return
	}
	for _, impl := range resp.Implementors {
		fmt.Printf("  %s", impl.Text)
		if impl.Applicability != "unconditional" {
			fmt.Printf("  [%s]", impl.Applicability)
		}
		fmt.Println()
	}
}
