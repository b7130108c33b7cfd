package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"go.uber.org/zap"
)

// Server runs the router on a listener
type Server struct {
	log logger.Logger
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. Serving starts with Start.
func Listen(log logger.Logger, addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		log: log.Named("http"),
		ln:  ln,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Start serves in the background
func (s *Server) Start() {
	routine.Go(s.log, "http-server", func() {
		s.log.Info("http server listening", zap.String("addr", s.ln.Addr().String()))
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	})
}

// Shutdown stops accepting requests and waits for running ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
