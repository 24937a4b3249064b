package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/PageInsights/internal/metrics"
)

// recoveryMiddleware recovers from panics in handlers.
type recoveryMiddleware struct {
	logger *zap.Logger
}

func newRecoveryMiddleware(logger *zap.Logger) *recoveryMiddleware {
	return &recoveryMiddleware{logger: logger}
}

func (rm *recoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				rm.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// loggingMiddleware logs each request and records request metrics.
type loggingMiddleware struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newLoggingMiddleware(logger *zap.Logger, m *metrics.Metrics) *loggingMiddleware {
	return &loggingMiddleware{logger: logger, metrics: m}
}

func (l *loggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		// The mux fills in Pattern on the shared request; it keeps run IDs
		// out of the route label.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if l.metrics != nil {
			l.metrics.RecordRequest(route, r.Method, rw.status, duration)
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Int("size", rw.size),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		}

		switch {
		case rw.status >= 500:
			l.logger.Error("request completed", fields...)
		case rw.status >= 400:
			l.logger.Warn("request completed", fields...)
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			l.logger.Debug("request completed", fields...)
		default:
			l.logger.Info("request completed", fields...)
		}
	})
}

// rateLimiter is a token bucket shared by the generation routes.
type rateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRateLimiter(cfg RateLimit, logger *zap.Logger, m *metrics.Metrics) *rateLimiter {
	rl := &rateLimiter{logger: logger, metrics: m}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		rl.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return rl
}

func (rl *rateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(r.Pattern)
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
