package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"warnet-server-go/internal/platform/config"
	"warnet-server-go/internal/platform/logging"
)

// Server accepts terminal connections and hands each to the handler on its
// own goroutine.
type Server struct {
	cfg     config.ServerConfig
	handler *Handler
	logger  *logging.Logger
	wg      sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds the terminal-facing TCP server.
func NewServer(cfg config.ServerConfig, handler *Handler, logger *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and blocks in the accept loop until the context
// is cancelled. In-flight connections are drained before it returns.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.IP, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.InfoTag("TCP", "listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.WarnTag("TCP", "accept failed", "error", err)
			continue
		}

		c := NewConnection(uuid.NewString(), conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.Handle(ctx, c)
		}()
	}

	s.wg.Wait()
	s.logger.InfoTag("TCP", "server stopped")
	return nil
}
