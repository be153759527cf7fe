package cmd

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

//go:embed mcp_prelude.md
var mcpPrelude string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server (publishes CLI instructions only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := binaryName()
		instructions := fmt.Sprintf(mcpPrelude, name) + agentHelp(rootCmd, name)

		s := server.NewMCPServer("ferrisindex-cli", "0.1.0",
			server.WithInstructions(instructions),
		)
		return server.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// agentHelp lists the user-facing subcommands with their usage and
// examples, in the form agents read from MCP instructions.
func agentHelp(root *cobra.Command, name string) string {
	var b strings.Builder
	for _, c := range root.Commands() {
		if c.Hidden || !c.IsAvailableCommand() {
			continue
		}
		switch c.Name() {
		case "daemon", "mcp", "logs", "help", "completion":
			continue
		}
		fmt.Fprintf(&b, "\n## %s %s\n\n%s\n", name, c.Use, c.Short)
		if c.Example != "" {
			example := strings.ReplaceAll(c.Example, "ferrisindex ", name+" ")
			fmt.Fprintf(&b, "\n```\n%s\n```\n", example)
		}
	}
	return b.String()
}

// binaryName returns "ferrisindex" if it's in PATH and points to the current
// binary, otherwise returns the full path to the binary.
func binaryName() string {
	exe, err := os.Executable()
	if err != nil {
		return "ferrisindex"
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "ferrisindex"
	}

	onPath, err := exec.LookPath("ferrisindex")
	if err == nil {
		resolved, err := filepath.EvalSymlinks(onPath)
		if err == nil && resolved == exe {
			return "ferrisindex"
		}
	}

	return exe
}
