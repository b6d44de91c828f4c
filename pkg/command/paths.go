package command

import (
	"os"
	"path/filepath"
	"strconv"
)

const (
	appDir   = "bar-pulse"
	fifoName = "bar-pulse.fifo"
)

// DefaultFIFOPath returns $XDG_RUNTIME_DIR/bar-pulse/bar-pulse.fifo, or
// /tmp/$USER/bar-pulse.fifo when no runtime directory is set.
func DefaultFIFOPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appDir, fifoName)
	}
	user := os.Getenv("USER")
	if user == "" {
		user = strconv.Itoa(os.Getuid())
	}
	return filepath.Join(os.TempDir(), user, fifoName)
}

// LockPath returns the advisory lock file guarding writes to fifo.
func LockPath(fifo string) string { return fifo + ".lock" }
