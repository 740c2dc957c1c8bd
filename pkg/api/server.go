package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/log"
)

const (
	acceptPoll  = time.Second
	connTimeout = 30 * time.Second
	connWorkers = 10
)

// Server accepts control connections on a unix socket and dispatches each
// request through the router.
type Server struct {
	socketPath string
	router     *Router
	logger     zerolog.Logger

	listener *net.UnixListener
	conns    chan net.Conn
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a control server for the given socket path.
func NewServer(socketPath string, router *Router) *Server {
	return &Server{
		socketPath: socketPath,
		router:     router,
		logger:     log.WithComponent("api"),
		conns:      make(chan net.Conn, connWorkers),
		stop:       make(chan struct{}),
	}
}

// Start binds the socket and launches the accept loop and worker pool.
// A stale socket file from a previous run is removed first.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("invalid socket path: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to bind control socket: %w", err)
	}
	s.listener = listener

	// The socket is trusted to filesystem permissions; any local user may
	// drive the daemon.
	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	for i := 0; i < connWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info().Str("socket", s.socketPath).Msg("Control server listening")
	return nil
}

// Stop shuts the server down, drains in-flight connections, and unlinks
// the socket file.
func (s *Server) Stop() {
	close(s.stop)
	s.wg.Wait()
	if s.listener != nil {
		s.listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Msg("Failed to unlink socket")
	}
	s.logger.Info().Msg("Control server stopped")
}

// acceptLoop polls for connections with a short deadline so shutdown is
// observed within a second.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer close(s.conns)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stop:
				return
			default:
				s.logger.Error().Err(err).Msg("Accept failed")
				continue
			}
		}
		// Workers may all be busy at shutdown; never block past stop.
		select {
		case s.conns <- conn:
		case <-s.stop:
			conn.Close()
			return
		}
	}
}

func (s *Server) worker() {
	defer s.wg.Done()
	for conn := range s.conns {
		s.handleConn(conn)
	}
}

// handleConn serves exactly one request/response pair.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		s.writeResponse(conn, Error("Invalid request: malformed JSON"))
		return
	}

	resp := s.dispatch(raw)
	s.writeResponse(conn, resp)
}

// dispatch routes the request, converting a handler panic into an error
// envelope so one bad request cannot take a worker down.
func (s *Server) dispatch(raw json.RawMessage) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Handler panicked")
			resp = Error("Internal error")
		}
	}()
	return s.router.Dispatch(raw)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}
