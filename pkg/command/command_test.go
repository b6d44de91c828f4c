package command

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"golang.org/x/sys/unix"
)

// recordingInbox records offered verbs and can simulate a full queue.
type recordingInbox struct {
	mu    sync.Mutex
	verbs []string
	full  bool
	got   chan string
}

func newRecordingInbox() *recordingInbox {
	return &recordingInbox{got: make(chan string, 16)}
}

func (r *recordingInbox) Offer(verb string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.verbs = append(r.verbs, verb)
	r.got <- verb
	return true
}

func (r *recordingInbox) Verbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.verbs...)
}

func (r *recordingInbox) wait(t *testing.T) string {
	t.Helper()
	select {
	case v := <-r.got:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a verb")
		return ""
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{"alsa:up", Command{"alsa", "up"}, false},
		{"ALSA:Up", Command{"alsa", "up"}, false},
		{"  mpd : Toggle \n", Command{"mpd", "toggle"}, false},
		{"alsa:set 40", Command{"alsa", "set 40"}, false},
		{"alsa", Command{}, true},
		{"alsa:up:now", Command{}, true},
		{":up", Command{}, true},
		{"alsa:", Command{}, true},
		{"", Command{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformed", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestDispatchRoutes(t *testing.T) {
	r := NewRouter(nil)
	alsa, mpd := newRecordingInbox(), newRecordingInbox()
	if err := r.Register("alsa", alsa); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("MPD", mpd); err != nil {
		t.Fatal(err)
	}

	if !r.Dispatch("ALSA:Up") {
		t.Error("ALSA:Up should be delivered")
	}
	if r.Dispatch("bogus:up") {
		t.Error("unknown target should be dropped")
	}
	if r.Dispatch("alsa up") {
		t.Error("malformed line should be dropped")
	}
	if !r.Dispatch("mpd:next") {
		t.Error("mpd:next should be delivered")
	}

	if diff := cmp.Diff([]string{"up"}, alsa.Verbs()); diff != "" {
		t.Errorf("alsa verbs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"next"}, mpd.Verbs()); diff != "" {
		t.Errorf("mpd verbs mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRouter(nil)
	_ = r.Register("alsa", newRecordingInbox())
	err := r.Register("Alsa", newRecordingInbox())
	if !errors.Is(err, ErrDuplicateRoute) {
		t.Errorf("err = %v, want ErrDuplicateRoute", err)
	}
	if err := r.Register("a:b", newRecordingInbox()); err == nil {
		t.Error("route containing a separator should fail")
	}
	if diff := cmp.Diff([]string{"alsa"}, r.Routes()); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchFullInbox(t *testing.T) {
	r := NewRouter(nil)
	in := newRecordingInbox()
	in.full = true
	_ = r.Register("alsa", in)
	if r.Dispatch("alsa:up") {
		t.Error("full inbox should reject")
	}
}

func TestDefaultFIFOPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultFIFOPath(); got != "/run/user/1000/bar-pulse/bar-pulse.fifo" {
		t.Errorf("DefaultFIFOPath = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("USER", "alice")
	want := filepath.Join(os.TempDir(), "alice", "bar-pulse.fifo")
	if got := DefaultFIFOPath(); got != want {
		t.Errorf("DefaultFIFOPath = %q, want %q", got, want)
	}
}

func startFIFO(t *testing.T) (*FIFOListener, *recordingInbox, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run", "bar.fifo")
	r := NewRouter(nil)
	in := newRecordingInbox()
	_ = r.Register("alsa", in)

	l := NewFIFOListener(path, r, nil)
	if err := l.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l, in, path
}

func TestFIFOListener(t *testing.T) {
	l, in, path := startFIFO(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	if err := NewSender(path).Send(context.Background(), "ALSA", "Up"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if v := in.wait(t); v != "up" {
		t.Errorf("verb = %q, want up", v)
	}

	// A raw multi-line write, as from echo -e, delivers each line.
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo: %v", err)
	}
	_, _ = f.WriteString("alsa:mute\nbogus:x\nalsa:set 30\n")
	f.Close()
	if v := in.wait(t); v != "mute" {
		t.Errorf("verb = %q, want mute", v)
	}
	if v := in.wait(t); v != "set 30" {
		t.Errorf("verb = %q, want set 30", v)
	}

	// A single write without a trailing newline is one command.
	f, err = os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo: %v", err)
	}
	_, _ = f.WriteString("alsa:down")
	f.Close()
	if v := in.wait(t); v != "down" {
		t.Errorf("verb = %q, want down", v)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("fifo not removed: %v", err)
	}
}

func TestSplitCommands(t *testing.T) {
	tests := []struct {
		data    string
		advance int
		token   string
	}{
		{"alsa:up\nmpd:next\n", 8, "alsa:up"},
		{"alsa:up", 7, "alsa:up"},
		{"\nalsa:up", 1, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		advance, token, err := splitCommands([]byte(tt.data), false)
		if err != nil || advance != tt.advance || string(token) != tt.token {
			t.Errorf("splitCommands(%q) = %d, %q, %v; want %d, %q", tt.data, advance, token, err, tt.advance, tt.token)
		}
	}
}

func TestFIFOReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bar.fifo")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	l := NewFIFOListener(path, NewRouter(nil), nil)
	if err := l.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer l.Close()

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		t.Fatal(err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFIFO {
		t.Errorf("mode = %o, want fifo", st.Mode)
	}
}

func TestSendNoReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bar.fifo")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Fatal(err)
	}
	err := NewSender(path).Send(context.Background(), "alsa", "up")
	if !errors.Is(err, ErrNoReader) {
		t.Errorf("err = %v, want ErrNoReader", err)
	}

	err = NewSender(filepath.Join(t.TempDir(), "missing.fifo")).Send(context.Background(), "alsa", "up")
	if !errors.Is(err, ErrNoReader) {
		t.Errorf("missing fifo: err = %v, want ErrNoReader", err)
	}
}

func TestSendMalformed(t *testing.T) {
	err := NewSender("/nonexistent").Send(context.Background(), "al:sa", "up")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestSendLockBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bar.fifo")
	holder, err := os.OpenFile(LockPath(path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := unix.Flock(int(holder.Fd()), unix.LOCK_EX); err != nil {
		t.Fatal(err)
	}

	s := &Sender{FIFO: path, Attempts: 3, Backoff: time.Millisecond}
	if err := s.Send(context.Background(), "alsa", "up"); !errors.Is(err, ErrLockBusy) {
		t.Errorf("err = %v, want ErrLockBusy", err)
	}
}

func TestSocketServer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "bar.sock")
	r := NewRouter(nil)
	in := newRecordingInbox()
	_ = r.Register("mpd", in)

	status := func() any {
		return []map[string]any{{"name": "mpd", "run_count": 3}}
	}
	s := NewSocketServer(sock, r, status, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	info, err := os.Stat(sock)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}

	resp, err := QuerySocket(sock, "status", time.Second)
	if err != nil {
		t.Fatalf("QuerySocket failed: %v", err)
	}
	if !strings.Contains(resp, `"run_count":3`) {
		t.Errorf("status response = %q", resp)
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = conn.Write([]byte("MPD:Toggle\n"))
	conn.Close()
	if v := in.wait(t); v != "toggle" {
		t.Errorf("verb = %q, want toggle", v)
	}
}

func TestSocketStopIdempotent(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "bar.sock")
	s := NewSocketServer(sock, NewRouter(nil), nil, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
}
