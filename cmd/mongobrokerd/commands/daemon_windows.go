//go:build windows

package commands

import (
	"fmt"
	"os"
)

// signalZero is a no-op on Windows: os.FindProcess already opens a handle
// to the process and fails if it does not exist, so reaching this point
// means the process is alive.
func signalZero(process *os.Process) error {
	return nil
}

// startDaemon is not supported on Windows.
// Use --foreground flag to run the server in the foreground.
func startDaemon() error {
	return fmt.Errorf("daemon mode is not supported on Windows, use --foreground")
}
