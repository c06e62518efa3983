package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"
)

type dispatchCtxKey struct{}

// RequestCtx carries request metadata through the middleware stack
// using a single context.WithValue call instead of per-middleware chaining.
type RequestCtx struct {
	RequestID string
	StartTime time.Time
}

// GetRequestCtx retrieves the request context from the context.
func GetRequestCtx(ctx context.Context) *RequestCtx {
	if v := ctx.Value(dispatchCtxKey{}); v != nil {
		return v.(*RequestCtx)
	}
	return nil
}

var rwPool = sync.Pool{
	New: func() interface{} {
		return &pooledResponseWriter{}
	},
}

type pooledResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func (rw *pooledResponseWriter) reset(w http.ResponseWriter) {
	rw.ResponseWriter = w
	rw.statusCode = 200
	rw.bytesWritten = 0
	rw.wroteHeader = false
}

func (rw *pooledResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *pooledResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.statusCode = 200
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *pooledResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var ridBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 8)
		return &b
	},
}

func fastRequestID() string {
	bp := ridBufPool.Get().(*[]byte)
	b := *bp
	rand.Read(b)
	var dst [16]byte
	hex.Encode(dst[:], b)
	ridBufPool.Put(bp)
	return string(dst[:])
}

// CoreMiddleware combines panic recovery, request ID assignment, and
// access logging into a single handler wrapping the single exposed
// route plus the operational surfaces.
func CoreMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = fastRequestID()
				r.Header.Set("X-Request-ID", id)
			}
			w.Header().Set("X-Request-ID", id)

			start := time.Now()
			rw := rwPool.Get().(*pooledResponseWriter)
			rw.reset(w)

			next.ServeHTTP(rw, r)

			if logger.Enabled(r.Context(), slog.LevelInfo) {
				attrs := [6]slog.Attr{
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rw.statusCode),
					slog.Duration("duration", time.Since(start)),
					slog.Int("bytes", rw.bytesWritten),
					slog.String("request_id", id),
				}
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs[:]...)
			}

			rwPool.Put(rw)
		})
	}
}
