package modbus

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultIdleTimeout closes a connection that sends nothing for this
// long.
const defaultIdleTimeout = 30 * time.Second

// drainTimeout bounds how long Stop waits for in-flight connection
// handlers before proceeding without them.
const drainTimeout = 2 * time.Second

// TCPServer accepts Modbus/TCP connections and dispatches every
// request against Registry. One goroutine per connection; each
// connection is otherwise strictly request/response with no
// pipelining assumed beyond what the client sends.
type TCPServer struct {
	Registry    *Registry
	IdleTimeout time.Duration
	Logger      Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// NewTCPServer constructs a server backed by reg. reg must not be nil.
func NewTCPServer(reg *Registry) *TCPServer {
	return &TCPServer{Registry: reg, IdleTimeout: defaultIdleTimeout}
}

// ListenAndServe binds addr and accepts connections until Stop is
// called or the listener errors. It blocks until the accept loop
// exits and returns the terminating error (nil on a clean Stop).
func (s *TCPServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return newErr("tcp_server.listen", KindIO, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on an already-bound listener. Useful for
// callers that need SO_REUSEADDR or other socket options set up
// themselves before handing the listener over.
func (s *TCPServer) Serve(ln net.Listener) error {
	stopCh := make(chan struct{})
	s.mu.Lock()
	s.listener = ln
	s.conns = make(map[net.Conn]struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	log := logOrNoop(s.Logger)
	log.Infow("tcp server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopCh:
				return nil
			default:
				return newErr("tcp_server.accept", KindIO, err)
			}
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener and every live client connection, causing
// Serve and the handlers to return, then waits up to drainTimeout for
// in-flight handlers to finish before proceeding without them.
func (s *TCPServer) Stop() error {
	s.mu.Lock()
	ln := s.listener
	stopCh := s.stopCh
	s.listener = nil
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	close(stopCh)
	err := ln.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		logOrNoop(s.Logger).Warnw("handlers did not drain before timeout")
	}
	return err
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()
	log := logOrNoop(s.Logger).With(
		"session", uuid.NewString(),
		"remote", conn.RemoteAddr().String(),
	)
	log.Debugw("connection opened")

	idle := s.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return
		}

		frame, err := readMBAPFrame(conn)
		if err != nil {
			log.Debugw("connection closed", "reason", err.Error())
			return
		}

		resp := DispatchWith(s.Registry, frame.UnitID, frame.PDU, log)
		out := encodeMBAP(frame.TransactionID, frame.UnitID, resp)
		if _, err := conn.Write(out); err != nil {
			log.Debugw("write failed", "error", err.Error())
			return
		}
	}
}
