package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const maxLine = 4096

// FIFOListener reads commands from a named pipe. Commands are separated by
// newlines; a write that ends without one is a complete command too, so
// `printf alsa:up > fifo` works.
//
// The pipe is held open read-write, so it never reports EOF between writers
// and a non-blocking writer open succeeds for as long as the daemon runs.
type FIFOListener struct {
	path   string
	router *Router
	logger *slog.Logger

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// NewFIFOListener returns a listener for path. A nil logger uses
// slog.Default().
func NewFIFOListener(path string, router *Router, logger *slog.Logger) *FIFOListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &FIFOListener{path: path, router: router, logger: logger}
}

// Path returns the pipe's location.
func (l *FIFOListener) Path() string { return l.path }

// Open creates the pipe, replacing whatever stale file is at the path, and
// opens it. The parent directory is created owner-only.
func (l *FIFOListener) Open() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create fifo directory: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale fifo: %w", err)
	}
	if err := unix.Mkfifo(l.path, 0o600); err != nil {
		return fmt.Errorf("mkfifo %s: %w", l.path, err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(l.path)
		return fmt.Errorf("open fifo: %w", err)
	}

	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
	return nil
}

// Serve dispatches lines until ctx is cancelled or Close is called. Open
// must have succeeded.
func (l *FIFOListener) Serve(ctx context.Context) error {
	l.mu.Lock()
	f := l.f
	l.mu.Unlock()
	if f == nil {
		return errors.New("fifo not open")
	}

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, maxLine), maxLine)
	sc.Split(splitCommands)
	for sc.Scan() {
		l.router.Dispatch(sc.Text())
	}

	if l.isClosed() {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read fifo: %w", err)
	}
	return nil
}

// splitCommands yields newline-terminated lines, and otherwise whatever a
// single read returned. Writes up to PIPE_BUF bytes are atomic, so a read
// never ends inside a short command.
func splitCommands(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Close stops Serve and removes the pipe.
func (l *FIFOListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.f != nil {
		l.f.Close()
	}
	os.Remove(l.path)
	return nil
}

func (l *FIFOListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
