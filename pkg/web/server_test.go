package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	metrics "github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/observability/prometheus"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/pipeline"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeSource struct {
	mu sync.Mutex
	st pipeline.Status
}

func (f *fakeSource) Status() pipeline.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeSource) setState(s string) {
	f.mu.Lock()
	f.st.State = s
	f.mu.Unlock()
}

func startServer(t *testing.T, s *Server) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		_ = ln.Close()
	})
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func get(t *testing.T, c *fasthttp.Client, method, path string) (int, string) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://status" + path)
	req.Header.SetMethod(method)
	require.NoError(t, c.Do(req, resp))
	return resp.StatusCode(), string(resp.Body())
}

func TestServer_Endpoints(t *testing.T) {
	reg := prom.NewRegistry()
	m := metrics.NewMetrics(reg)
	src := &fakeSource{st: pipeline.Status{
		Name:     "drone",
		RunID:    "run-1",
		State:    string(pipeline.StateRunning),
		Channels: []pipeline.ChannelStatus{{Name: "telemetry", Len: 3, Cap: 100}},
	}}

	cfg := DefaultConfig(":0")
	cfg.Logger = core.NewNopLogger()
	cfg.Metrics = m
	cfg.Gatherer = reg
	c := startServer(t, NewServer(src, cfg))

	code, body := get(t, c, fasthttp.MethodGet, "/status")
	require.Equal(t, fasthttp.StatusOK, code)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "run-1", st.RunID)
	require.Len(t, st.Channels, 1)
	assert.Equal(t, 3, st.Channels[0].Len)

	code, body = get(t, c, fasthttp.MethodGet, "/healthz")
	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)

	src.setState(string(pipeline.StateJoined))
	code, _ = get(t, c, fasthttp.MethodGet, "/healthz")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, code)

	code, body = get(t, c, fasthttp.MethodGet, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, code)
	assert.True(t, strings.Contains(body, "pipeline_http_requests_total"), body)

	code, _ = get(t, c, fasthttp.MethodGet, "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, code)
	code, _ = get(t, c, fasthttp.MethodPost, "/status")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, code)
}

func TestRouter_ErrorsAndPanics(t *testing.T) {
	s := NewServer(&fakeSource{}, DefaultConfig(":0"))
	s.Router().GET("/fail", func(*RequestContext) error { return errors.New("broken") })
	s.Router().GET("/panic", func(*RequestContext) error { panic("boom") })
	c := startServer(t, s)

	code, body := get(t, c, fasthttp.MethodGet, "/fail")
	assert.Equal(t, fasthttp.StatusInternalServerError, code)
	assert.Contains(t, body, "broken")

	code, body = get(t, c, fasthttp.MethodGet, "/panic")
	assert.Equal(t, fasthttp.StatusInternalServerError, code)
	assert.Contains(t, body, "internal_server_error")
}

func TestRequestContext_JSONInvalidStatus(t *testing.T) {
	ctx := &RequestContext{RequestCtx: &fasthttp.RequestCtx{}}
	assert.Error(t, ctx.JSON(999, "x"))
	assert.Error(t, ctx.JSON(200, nil))
	require.NoError(t, ctx.Text(200, "ok"))
	assert.Equal(t, "ok", string(ctx.RequestCtx.Response.Body()))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(func(ctx *RequestContext) error {
		seen = RequestIDFrom(ctx)
		return nil
	})

	ctx := &RequestContext{RequestCtx: &fasthttp.RequestCtx{}}
	require.NoError(t, h(ctx))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, string(ctx.RequestCtx.Response.Header.Peek(RequestIDHeader)))

	ctx = &RequestContext{RequestCtx: &fasthttp.RequestCtx{}}
	ctx.RequestCtx.Request.Header.Set(RequestIDHeader, "abc-123")
	require.NoError(t, h(ctx))
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", string(ctx.RequestCtx.Response.Header.Peek(RequestIDHeader)))

	assert.Empty(t, RequestIDFrom(&RequestContext{RequestCtx: &fasthttp.RequestCtx{}}))
}
