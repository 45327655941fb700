package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/arelis/hub"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id assigned to the request by the API middleware.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func (a *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			if generated, err := gonanoid.New(); err == nil {
				reqID = generated
			}
		}
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqID)))
	})
}

func (a *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		a.logger.InfoContext(r.Context(), "api request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.ErrorContext(r.Context(), "panic recovered",
					"request_id", RequestID(r.Context()),
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
					Code:    hub.CodeInternal,
					Message: "internal server error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *Handler) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !a.limiter.Allow(key) {
			secs := int(math.Ceil(a.limiter.RetryAfter(key).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			a.writeError(w, r, goerrors.New("api: rate limit exceeded", goerrors.CategoryRateLimit).
				WithCode(http.StatusTooManyRequests).
				WithTextCode(hub.CodeRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys the rate limiter. Forwarding headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
