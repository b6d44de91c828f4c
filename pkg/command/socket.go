package command

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// StatusFunc returns the value reported for a STATUS request. It is encoded
// as a single JSON line.
type StatusFunc func() any

// SocketServer accepts command lines on a Unix domain socket.
//
// Protocol:
//   - Each line is either a target:verb command, dispatched like a fifo line
//     with no reply, or the word STATUS.
//   - STATUS is answered with one JSON line describing every producer.
type SocketServer struct {
	socketPath string
	router     *Router
	status     StatusFunc
	logger     *slog.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewSocketServer creates a server that will listen on socketPath. A nil
// status disables STATUS.
func NewSocketServer(socketPath string, router *Router, status StatusFunc, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketServer{
		socketPath: socketPath,
		router:     router,
		status:     status,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start begins listening. The socket file is created with mode 0600 after
// removing any stale file at the path.
func (s *SocketServer) Start() error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for open connections and removes the
// socket file. Safe to call more than once.
func (s *SocketServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *SocketServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Debug("socket accept failed", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves one client until it disconnects or the server stops.
func (s *SocketServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.done:
			conn.Close()
		case <-finished:
		}
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "STATUS") {
			if err := s.writeStatus(conn); err != nil {
				return
			}
			continue
		}
		s.router.Dispatch(line)
	}
}

func (s *SocketServer) writeStatus(conn net.Conn) error {
	var payload any = map[string]string{"error": "status not available"}
	if s.status != nil {
		payload = s.status()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	_, err = fmt.Fprintf(conn, "%s\n", data)
	return err
}

// QuerySocket sends one line to the server at socketPath and returns the
// single-line reply.
func QuerySocket(socketPath, line string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return "", fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("empty response from daemon")
	}
	return sc.Text(), nil
}
