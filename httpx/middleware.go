package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// Middleware is a function that wraps another [http.Handler] to inject logic before or after the handler is run.
type Middleware func(next http.Handler) http.Handler

// Wrap will wrap the given [http.Handler], such that all given [Middleware] will be executed in the order provided.
func Wrap(next http.Handler, middlewares ...Middleware) http.Handler {
	if next == nil {
		panic("nil handler")
	}
	// Wrapped in reverse order, so they're executed in parameter order.
	for i := len(middlewares) - 1; i >= 0; i-- {
		next = middlewares[i](next)
	}
	return next
}

type loggingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (l *loggingWriter) WriteHeader(statusCode int) {
	l.ResponseWriter.WriteHeader(statusCode)
	l.statusCode = statusCode
}

// Hijack allows connection upgrades, such as websockets, to pass through the middleware.
func (l *loggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := l.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer doesn't support hijacking")
	}
	l.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (l *loggingWriter) Unwrap() http.ResponseWriter {
	return l.ResponseWriter
}

// LoggingMiddleware logs each request with its status code, method, path, duration, and request ID.
func LoggingMiddleware(l *slog.Logger, level slog.Level) Middleware {
	if l == nil {
		panic("nil logger")
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lw := &loggingWriter{w, http.StatusOK}
			start := time.Now()
			defer func() {
				l.Log(r.Context(), level, "Handled request",
					"statusCode", lw.statusCode,
					"method", r.Method,
					"path", r.URL.Path,
					"duration", time.Since(start),
					"requestId", w.Header().Get(HeaderRequestID),
				)
			}()
			next.ServeHTTP(lw, r)
		})
	}
}

// RecoveryMiddleware turns a panic in the wrapped handler into a logged 500 response.
func RecoveryMiddleware(l *slog.Logger) Middleware {
	if l == nil {
		panic("nil logger")
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.LogAttrs(context.Background(), slog.LevelError, "Recovered from panic",
						slog.String("panic", fmt.Sprint(rec)),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
