package control

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/smykla-skalski/vigil/pkg/logger"
)

var (
	// ErrUnknownCommand is returned for commands with no registered handler.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingParameter is returned when a required parameter is absent.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrServerClosed is returned from Serve after Shutdown.
	ErrServerClosed = errors.New("control server closed")
)

const (
	// SocketFileMode restricts the control socket to the owning user.
	SocketFileMode = 0o600

	// defaultHandleTimeout bounds one connection's read-handle-write cycle.
	defaultHandleTimeout = 30 * time.Second
)

// Handler serves one control command.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Server answers control requests on a Unix socket. Connections are
// bounded by a weighted semaphore; excess connections wait rather than
// fail.
type Server struct {
	socketPath string
	handlers   map[string]Handler
	sem        *semaphore.Weighted
	logger     logger.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a Server for socketPath admitting at most
// maxConnections concurrent connections.
func NewServer(socketPath string, maxConnections int, log logger.Logger) *Server {
	if maxConnections <= 0 {
		maxConnections = 1
	}

	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
		sem:        semaphore.NewWeighted(int64(maxConnections)),
		logger:     log,
	}
}

// Handle registers a handler for a command name. Registration after
// Serve starts is not supported.
func (s *Server) Handle(command string, handler Handler) {
	s.handlers[command] = handler
}

// Serve binds the socket and accepts connections until ctx is cancelled
// or Shutdown is called. A stale socket file from a previous run is
// removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return errors.Wrapf(err, "failed to create socket directory for %s", s.socketPath)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove stale socket %s", s.socketPath)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.socketPath)
	}

	if err := os.Chmod(s.socketPath, SocketFileMode); err != nil {
		_ = listener.Close()

		return errors.Wrapf(err, "failed to restrict socket %s", s.socketPath)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = listener.Close()

		return ErrServerClosed
	}

	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("control server listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if closed {
				s.wg.Wait()

				return ErrServerClosed
			}

			s.logger.Error("accept failed", "error", err)

			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			_ = conn.Close()

			continue
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)

			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and removes the socket file. In-flight
// connections finish on their own deadlines.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	if rerr := os.Remove(s.socketPath); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}

	return err
}

// handleConn reads one request, dispatches it, and writes one response.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(defaultHandleTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Debug("malformed control request", "error", err)
		s.writeResponse(conn, Fail(errors.Wrap(err, "malformed request")))

		return
	}

	handler, ok := s.handlers[req.Command]
	if !ok {
		s.writeResponse(conn, Fail(errors.Wrapf(ErrUnknownCommand, "%s", req.Command)))

		return
	}

	resp, err := handler(ctx, &req)
	if err != nil {
		s.logger.Debug("control command failed", "command", req.Command, "error", err)
		s.writeResponse(conn, Fail(err))

		return
	}

	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp *Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("failed to write control response", "error", err)
	}
}

// RequiredParam extracts a required string parameter from a request.
func RequiredParam(req *Request, name string) (string, error) {
	value, ok := req.Parameters[name]
	if !ok || value == "" {
		return "", errors.Wrapf(ErrMissingParameter, "%s", name)
	}

	return value, nil
}
