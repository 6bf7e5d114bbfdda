package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vulntrack/api/pkg/apierror"
)

// Timeout cancels the request context after d and answers 504 when the
// handler has not produced a response by then. The handler goroutine keeps
// running until it observes the canceled context; anything it writes after
// the deadline is discarded.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			done := make(chan any, 1)

			go func() {
				defer func() { done <- recover() }()
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case p := <-done:
				if p != nil {
					// Resurface on the request goroutine so the recovery
					// middleware sees it.
					panic(p)
				}
			case <-ctx.Done():
				if gw.seal() {
					apierror.New(http.StatusGatewayTimeout, "TIMEOUT", "Request timed out").WriteJSON(w)
				}
			}
		})
	}
}

// guardedWriter rejects writes once the timeout response went out.
type guardedWriter struct {
	http.ResponseWriter
	mu     sync.Mutex
	wrote  bool
	sealed bool
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return
	}
	g.wrote = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return 0, context.DeadlineExceeded
	}
	g.wrote = true
	return g.ResponseWriter.Write(b)
}

// seal stops further writes and reports whether the response line is still
// unsent, meaning the timeout body may be written.
func (g *guardedWriter) seal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sealed = true
	return !g.wrote
}
