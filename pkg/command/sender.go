package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrLockBusy is returned when the sender lock stays held by another
	// sender for the whole retry budget.
	ErrLockBusy = errors.New("command fifo is locked by another sender")

	// ErrNoReader is returned when no daemon has the fifo open.
	ErrNoReader = errors.New("no daemon is reading the command fifo")
)

// Sender lock retry budget.
const (
	DefaultLockAttempts = 40
	DefaultLockBackoff  = 50 * time.Millisecond
)

// Sender writes commands into a daemon's fifo. Concurrent senders serialize
// on an advisory lock next to the pipe so their lines never interleave.
type Sender struct {
	FIFO     string
	Attempts int
	Backoff  time.Duration
}

// NewSender returns a sender for fifo with the default retry budget.
func NewSender(fifo string) *Sender {
	return &Sender{FIFO: fifo, Attempts: DefaultLockAttempts, Backoff: DefaultLockBackoff}
}

// Send writes target:verb. Extra verb words are joined with spaces, so
// Send(ctx, "alsa", "set", "40") sends "alsa:set 40". It fails fast with
// ErrNoReader when no daemon is listening.
func (s *Sender) Send(ctx context.Context, target string, verb ...string) error {
	cmd, err := Parse(target + ":" + strings.Join(verb, " "))
	if err != nil {
		return err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(s.FIFO, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoReader, s.FIFO)
		}
		return fmt.Errorf("open fifo: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(cmd.String() + "\n"); err != nil {
		return fmt.Errorf("write fifo: %w", err)
	}
	return nil
}

// lock takes the advisory lock, retrying with a fixed backoff.
func (s *Sender) lock(ctx context.Context) (func(), error) {
	lf, err := os.OpenFile(LockPath(s.FIFO), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	fd := int(lf.Fd())

	attempts := max(s.Attempts, 1)
	for i := 0; ; i++ {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			lf.Close()
			return nil, fmt.Errorf("lock %s: %w", lf.Name(), err)
		}
		if i+1 >= attempts {
			lf.Close()
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			lf.Close()
			return nil, ctx.Err()
		case <-time.After(s.Backoff):
		}
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		lf.Close()
	}, nil
}
