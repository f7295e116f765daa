package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Server struct {
	srv *http.Server
}

// New creates a server. The baseCtx is used as the base context for all
// incoming requests (via BaseContext). Cancelling it causes in-flight sweeps
// and provider fetches to stop promptly during graceful shutdown.
// WriteTimeout is generous because a bulk sweep runs inside its request.
func New(baseCtx context.Context, port string, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: newMux(deps),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	return s.srv.Shutdown(ctx)
}
