package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// chiRouter backs the Router interface with chi. Nothing outside this file
// imports chi directly; handlers read path values through the stdlib
// r.PathValue, which chi populates.
type chiRouter struct {
	mux chi.Router
}

var _ Router = (*chiRouter)(nil)

// NewChiRouter creates the production Router. RealIP runs before the rate
// limiter so throttling keys on the client address, not the proxy's.
func NewChiRouter() Router {
	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)
	mux.Use(chimw.CleanPath)
	mux.Use(chimw.StripSlashes)

	return &chiRouter{mux: mux}
}

func (r *chiRouter) GET(path string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mux.Get(path, wrap(handler, middlewares))
}

func (r *chiRouter) POST(path string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mux.Post(path, wrap(handler, middlewares))
}

func (r *chiRouter) PUT(path string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mux.Put(path, wrap(handler, middlewares))
}

func (r *chiRouter) PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mux.Patch(path, wrap(handler, middlewares))
}

func (r *chiRouter) DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mux.Delete(path, wrap(handler, middlewares))
}

// Group mounts a subtree under prefix. Group middlewares run before any
// route-level middleware inside the subtree.
func (r *chiRouter) Group(prefix string, fn func(Router), middlewares ...Middleware) {
	r.mux.Route(prefix, func(sub chi.Router) {
		for _, mw := range middlewares {
			sub.Use(mw)
		}
		fn(&chiRouter{mux: sub})
	})
}

func (r *chiRouter) Use(middlewares ...Middleware) {
	for _, mw := range middlewares {
		r.mux.Use(mw)
	}
}

func (r *chiRouter) Handler() http.Handler {
	return r.mux
}

// Walk visits every registered route. Chi's internal catch-all entries are
// skipped so route listings only show real endpoints.
func (r *chiRouter) Walk(fn func(method, path string, handler http.Handler) error) error {
	return chi.Walk(r.mux, func(method, route string, handler http.Handler, _ ...func(http.Handler) http.Handler) error {
		if route == "/*" {
			return nil
		}
		return fn(method, route, handler)
	})
}

// wrap applies route-level middleware so the first listed middleware is the
// outermost.
func wrap(h http.HandlerFunc, middlewares []Middleware) http.HandlerFunc {
	if len(middlewares) == 0 {
		return h
	}
	var handler http.Handler = h
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler.ServeHTTP
}
