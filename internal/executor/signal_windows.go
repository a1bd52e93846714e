//go:build windows
// +build windows

package executor

import "os"

// sendTermSignal kills the process; Windows has no SIGTERM.
func sendTermSignal(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
