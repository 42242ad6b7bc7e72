package web

import "github.com/google/uuid"

// RequestIDHeader carries the request ID in and out
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID propagates the caller's X-Request-ID or assigns a new one,
// stores it on the request and echoes it in the response.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return func(ctx *RequestContext) error {
			id := string(ctx.RequestCtx.Request.Header.Peek(RequestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			ctx.RequestCtx.SetUserValue(requestIDKey, id)
			ctx.RequestCtx.Response.Header.Set(RequestIDHeader, id)
			return next(ctx)
		}
	}
}

// RequestIDFrom returns the ID assigned by RequestID, or ""
func RequestIDFrom(ctx *RequestContext) string {
	id, _ := ctx.RequestCtx.UserValue(requestIDKey).(string)
	return id
}
