package web

import (
	"sync"

	"github.com/valyala/fasthttp"
)

// Handler handles one request. A returned error becomes a 500 response.
type Handler func(ctx *RequestContext) error

// Middleware wraps a Handler
type Middleware func(next Handler) Handler

type route struct {
	method  string
	path    string
	handler Handler
}

// Router dispatches on exact method and path
type Router struct {
	mu         sync.RWMutex
	routes     []route
	middleware []Middleware
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{}
}

// Use appends middleware; the first added runs outermost.
func (r *Router) Use(m Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, m)
}

// GET registers a GET route
func (r *Router) GET(path string, h Handler) {
	r.Route(fasthttp.MethodGet, path, h)
}

// Route registers a route
func (r *Router) Route(method, path string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{method: method, path: path, handler: h})
}

// Raw registers a plain fasthttp handler, e.g. a promhttp adaptor
func (r *Router) Raw(method, path string, h fasthttp.RequestHandler) {
	r.Route(method, path, func(ctx *RequestContext) error {
		h(ctx.RequestCtx)
		return nil
	})
}

// ServeFastHTTP implements fasthttp.RequestHandler
func (r *Router) ServeFastHTTP(rc *fasthttp.RequestCtx) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method := string(rc.Method())
	path := string(rc.Path())
	ctx := &RequestContext{RequestCtx: rc}

	pathFound := false
	for _, rt := range r.routes {
		if rt.path != path {
			continue
		}
		pathFound = true
		if rt.method != method {
			continue
		}

		h := rt.handler
		for i := len(r.middleware) - 1; i >= 0; i-- {
			h = r.middleware[i](h)
		}
		if err := h(ctx); err != nil {
			rc.Error(err.Error(), fasthttp.StatusInternalServerError)
		}
		return
	}
	if pathFound {
		rc.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	rc.Error("Not Found", fasthttp.StatusNotFound)
}
