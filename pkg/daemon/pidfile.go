package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by AcquirePID when another live daemon holds
// the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDLock is an exclusive advisory lock on a PID file. The kernel drops the
// lock when the process dies, so a stale file never blocks a new daemon.
type PIDLock struct {
	path string
	f    *os.File
}

// AcquirePID opens path, takes an exclusive non-blocking flock on it and
// writes the current PID. It fails with ErrAlreadyRunning if another process
// holds the lock.
func AcquirePID(path string) (*PIDLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, rerr := ReadPID(path); rerr == nil {
				return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
			}
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock PID file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}

	return &PIDLock{path: path, f: f}, nil
}

// Release removes the PID file and drops the lock.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	var err error
	if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
		err = fmt.Errorf("remove PID file: %w", rerr)
	}
	l.f.Close()
	l.f = nil
	return err
}

// ReadPID reads and parses the PID from the given file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID file: %w", err)
	}

	return pid, nil
}

// IsProcessAlive checks whether a process with the given PID exists by
// sending signal 0.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// DefaultPIDPath returns the PID file used when none is configured: next to
// the FIFO, so two daemons never share one pipe.
func DefaultPIDPath(fifo string) string { return fifo + ".pid" }
