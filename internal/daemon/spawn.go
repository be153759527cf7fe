package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// spawnCommand builds the detached "daemon" subcommand of exe. It runs in
// its own session so it outlives the terminal that started it.
func spawnCommand(exe string) *exec.Cmd {
	cmd := exec.Command(exe, "daemon")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = os.Environ()
	return cmd
}

// Spawn starts a daemon as a detached subprocess of the running binary.
func Spawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	cmd := spawnCommand(exe)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	return cmd.Process.Release()
}
