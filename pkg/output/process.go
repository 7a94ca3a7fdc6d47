package output

import (
	"errors"
	"os"
	"syscall"
)

// processAlive probes pid with signal 0. A process that cannot be found is
// treated as gone; a permission error means it exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || !errors.Is(err, os.ErrProcessDone)
}
