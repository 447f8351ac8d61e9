package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Brownie44l1/damage-api/internal/config"
	"github.com/Brownie44l1/damage-api/internal/handlers"
	"github.com/Brownie44l1/damage-api/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bunrouter"
)

type Server struct {
	cfg    *config.Config
	router *bunrouter.CompatRouter
	pool   *WorkerPool
}

// New wires the routes for h. m may be nil.
func New(cfg *config.Config, h *handlers.Handler, m *metrics.Client) (*Server, error) {
	if m == nil {
		m = metrics.NoOp()
	}
	lm, err := newLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	pool := NewWorkerPool(cfg.InferenceWorkers, m)

	router := bunrouter.New(
		bunrouter.Use(loggingMiddleware(m)),
		bunrouter.Use(recoveryMiddleware),
	).Compat()

	router.GET("/health", enableCORS(h.Health))
	router.GET("/summary", enableCORS(h.Summary))
	router.POST("/inference", enableCORS(limitMiddleware(lm, h.WithGate(pool).Inference)))

	// preflight requests are answered by the CORS wrapper itself
	router.OPTIONS("/health", enableCORS(h.Health))
	router.OPTIONS("/summary", enableCORS(h.Summary))
	router.OPTIONS("/inference", enableCORS(h.Inference))

	return &Server{cfg: cfg, router: router, pool: pool}, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, giving in-flight requests up to the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", s.pool.size).
		Msg("server listening")
	log.Info().Msg("endpoints: GET /health, GET /summary, POST /inference")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
