package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/handlers"
	"github.com/Brownie44l1/damage-api/internal/metrics"
	"github.com/rs/zerolog/log"
	limiter "github.com/ulule/limiter/v3"
	stdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/uptrace/bunrouter"
	"golang.org/x/sync/semaphore"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// loggingMiddleware logs every request and reports its latency and status.
func loggingMiddleware(m *metrics.Client) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			err := next(wrapped, req)

			elapsed := time.Since(start)
			route := req.Route()
			tags := []string{
				"route:" + route,
				"method:" + req.Method,
				"status:" + strconv.Itoa(wrapped.Status()),
			}
			m.Timing(metrics.RequestLatency, elapsed, tags)
			m.Count(metrics.RequestTotal, 1, tags)

			log.Info().
				Str("method", req.Method).
				Str("route", route).
				Str("remote", req.RemoteAddr).
				Int("status", wrapped.Status()).
				Int64("content_length", req.ContentLength).
				Dur("elapsed", elapsed).
				Msg("request")
			return err
		}
	}
}

// recoveryMiddleware turns a panicking handler into a 500 response. The
// compat adapter already converts panics carrying an error into a returned
// error, so both paths end here.
func recoveryMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) (err error) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = wrapResponseWriter(w)
		}
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
			if err == nil {
				return
			}
			log.Error().Err(err).Str("path", req.URL.Path).Msg("recovered from handler failure")
			if !rw.wroteHeader {
				handlers.WriteError(rw, req.Request, err)
			}
			err = nil
		}()
		return next(rw, req)
	}
}

// newLimiter builds the /inference rate limiter, or returns nil when rate
// is empty.
func newLimiter(rate string) (*stdlib.Middleware, error) {
	if rate == "" {
		return nil, nil
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}
	log.Info().Str("rate", rate).Msg("rate limiter enabled")
	instance := limiter.New(memory.NewStore(), r)
	return stdlib.NewMiddleware(instance, stdlib.WithLimitReachedHandler(rateLimited)), nil
}

func limitMiddleware(lm *stdlib.Middleware, next http.HandlerFunc) http.HandlerFunc {
	if lm == nil {
		return next
	}
	return lm.Handler(next).ServeHTTP
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("rate limit reached")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(handlers.ErrorResponse{
		Error: "rate limit exceeded",
		Code:  apperrors.KindUnavailable,
	})
}

// WorkerPool bounds the number of inference pipelines running at once.
type WorkerPool struct {
	sem     *semaphore.Weighted
	size    int
	metrics *metrics.Client
}

func NewWorkerPool(size int, m *metrics.Client) *WorkerPool {
	if m == nil {
		m = metrics.NoOp()
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size)), size: size, metrics: m}
}

// Acquire waits for a worker slot and returns the func that frees it. It
// fails with ctx's error if ctx ends first.
func (p *WorkerPool) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.metrics.Timing(metrics.WorkerWait, time.Since(start), []string{"acquired:false"})
		return nil, err
	}
	p.metrics.Timing(metrics.WorkerWait, time.Since(start), []string{"acquired:true"})
	return func() { p.sem.Release(1) }, nil
}
