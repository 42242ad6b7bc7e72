package web

import (
	"fmt"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/valyala/fasthttp"
)

// RequestContext wraps a fasthttp request
type RequestContext struct {
	RequestCtx *fasthttp.RequestCtx
}

// JSON writes data as a JSON response
func (c *RequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	body, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	_, err = c.RequestCtx.Write(body)
	return err
}

// Text writes a plain text response
func (c *RequestContext) Text(statusCode int, text string) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("text/plain; charset=utf-8")
	_, err := c.RequestCtx.WriteString(text)
	return err
}

// Method returns the request method
func (c *RequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns the request path
func (c *RequestContext) Path() []byte {
	return c.RequestCtx.Path()
}
