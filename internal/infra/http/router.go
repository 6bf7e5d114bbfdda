package http

import (
	"net/http"
)

// Middleware wraps an http.Handler in the standard net/http style.
type Middleware func(http.Handler) http.Handler

// Router is the routing surface the rest of the service codes against.
// Route registration takes optional route-level middleware; the first
// middleware listed is the outermost.
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PUT(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group mounts a subtree under prefix; group middleware applies to
	// every route registered inside.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use adds middleware for all subsequently registered routes.
	Use(middlewares ...Middleware)

	// Handler returns the assembled http.Handler for the http.Server.
	Handler() http.Handler

	// Walk visits every registered route.
	Walk(fn func(method, path string, handler http.Handler) error) error
}
