package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisindex/internal/config"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View daemon log file",
	Run:   runLogs,
}

var (
	logsFollow bool
	logsLines  int
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to show")
}

// lastLines returns up to n trailing lines of r.
func lastLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = append(ring[1:], sc.Text())
		} else {
			ring = append(ring, sc.Text())
		}
	}
	return ring, sc.Err()
}

func runLogs(cmd *cobra.Command, args []string) {
	logPath := config.LogPath()
	f, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Println("no log file found (daemon may not have run yet)")
		return
	}
	if err != nil {
		log.Fatalf("opening log: %v", err)
	}
	lines, err := lastLines(f, logsLines)
	f.Close()
	if err != nil {
		log.Fatalf("reading log: %v", err)
	}
	for _, l := range lines {
		fmt.Println(l)
	}

	if !logsFollow {
		return
	}
	tailCmd := exec.Command("tail", "-n", "0", "-F", logPath)
	tailCmd.Stdout = os.Stdout
	tailCmd.Stderr = os.Stderr
	if err := tailCmd.Run(); err != nil {
		log.Fatalf("tail failed: %v", err)
	}
}
