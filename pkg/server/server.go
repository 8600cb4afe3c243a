package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-go-golems/forkchat/pkg/branches"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPort            = 3000
	DefaultCORSOrigin      = "*"
	DefaultReadTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultChatBranch backs POST /api/chat, which has no branch of its own.
	DefaultChatBranch = "chat"
)

// Info describes the backend behind the server, as reported by /health.
type Info struct {
	Engine string `json:"engine"`
	Model  string `json:"model"`
}

// Server exposes a branch manager over HTTP/JSON.
type Server struct {
	manager *branches.Manager
	tokens  *conversation.TokenCounter
	info    Info
	metrics http.Handler

	chatBranch      string
	port            int
	corsOrigin      string
	readTimeout     time.Duration
	shutdownTimeout time.Duration
}

type Option func(*Server)

func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		s.corsOrigin = origin
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

func WithInfo(info Info) Option {
	return func(s *Server) {
		s.info = info
	}
}

// WithTokenCounter adds a token estimate to history responses.
func WithTokenCounter(tc *conversation.TokenCounter) Option {
	return func(s *Server) {
		s.tokens = tc
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithChatBranch sets the branch that POST /api/chat talks to. It is created on first use.
// An empty id keeps DefaultChatBranch.
func WithChatBranch(branchID string) Option {
	return func(s *Server) {
		if branchID != "" {
			s.chatBranch = branchID
		}
	}
}

func NewServer(manager *branches.Manager, options ...Option) *Server {
	s := &Server{
		manager:         manager,
		chatBranch:      DefaultChatBranch,
		port:            DefaultPort,
		corsOrigin:      DefaultCORSOrigin,
		readTimeout:     DefaultReadTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.port)
}

// Handler returns the routes wrapped in the request id, logging and CORS middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/branch", s.handleCreateBranch)
	mux.HandleFunc("POST /api/branch/message", s.handleSendMessage)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/branch/{branchId}/history", s.handleGetHistory)
	mux.HandleFunc("GET /api/branch/{branchId}", s.handleGetBranch)
	mux.HandleFunc("GET /api/branches", s.handleListBranches)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return chain(mux, withRequestID, withLogging, withCORS(s.corsOrigin))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", s.shutdownTimeout).Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "could not shut down server")
	}
	return nil
}
