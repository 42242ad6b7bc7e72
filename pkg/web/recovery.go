package web

import (
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/valyala/fasthttp"
)

// Recovery turns a handler panic into a logged 500 response
func Recovery(logger core.Logger) Middleware {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return func(next Handler) Handler {
		return func(ctx *RequestContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("panic recovered: %s %s (request %s): %v", ctx.Method(), ctx.Path(), RequestIDFrom(ctx), r)
					ctx.RequestCtx.ResetBody()
					ctx.RequestCtx.SetStatusCode(fasthttp.StatusInternalServerError)
					ctx.RequestCtx.SetContentType("application/json")
					_, _ = ctx.RequestCtx.WriteString(`{"error":"internal_server_error"}`)
					err = nil
				}
			}()
			return next(ctx)
		}
	}
}
